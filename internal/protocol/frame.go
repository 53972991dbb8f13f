package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Frame layout: uint32 big-endian length | uint8 message type | length-1 payload bytes.
// The payload is UTF-8 JSON for every type except UploadData and DownloadData,
// which carry raw archive chunks.
const (
	HeaderSize = 4

	// DefaultMaxFrameSize caps a single frame. Uploads are chunked well below
	// this, so anything larger is a broken or hostile peer.
	DefaultMaxFrameSize = 8 << 20
)

// Message type codes. Fixed by the wire contract; never renumber.
const (
	MsgLoginReq     byte = 1
	MsgLoginResp    byte = 2
	MsgRegisterReq  byte = 3
	MsgRegisterResp byte = 4

	MsgUploadInit     byte = 10
	MsgUploadData     byte = 11
	MsgUploadEnd      byte = 12
	MsgGameRemoveReq  byte = 13
	MsgGameRemoveResp byte = 14

	MsgGameListReq  byte = 20
	MsgGameListResp byte = 21
	MsgDownloadReq  byte = 22
	MsgDownloadInit byte = 23
	MsgDownloadData byte = 24
	MsgDownloadEnd  byte = 25

	MsgRoomCreateReq    byte = 30
	MsgRoomCreateResp   byte = 31
	MsgRoomListReq      byte = 32
	MsgRoomListResp     byte = 33
	MsgRoomJoinReq      byte = 34
	MsgRoomJoinResp     byte = 35
	MsgRoomLeaveReq     byte = 36
	MsgRoomStatusUpdate byte = 37
	MsgGameStartCmd     byte = 38
	MsgGameLaunchEvent  byte = 39

	MsgGameRateReq  byte = 40
	MsgGameRateResp byte = 41

	MsgDevMyGamesReq  byte = 50
	MsgDevMyGamesResp byte = 51

	MsgReadyCheckReq  byte = 60
	MsgReadyCheckResp byte = 61
	MsgGameStartFail  byte = 62

	MsgForceLogout byte = 70

	MsgGameDetailReq  byte = 80
	MsgGameDetailResp byte = 81

	MsgPluginListReq      byte = 90
	MsgPluginListResp     byte = 91
	MsgPluginDownloadReq  byte = 92
	MsgPluginDownloadResp byte = 93

	MsgRoomChat byte = 95
)

// Encode builds a complete wire frame for the given type and payload.
func Encode(msgType byte, payload []byte) []byte {
	frame := make([]byte, HeaderSize+1+len(payload))
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(1+len(payload)))
	frame[HeaderSize] = msgType
	copy(frame[HeaderSize+1:], payload)
	return frame
}

// EncodeJSON marshals v and builds a complete wire frame around it.
func EncodeJSON(msgType byte, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling payload for type %d: %w", msgType, err)
	}
	return Encode(msgType, payload), nil
}

// WriteFrame writes one frame to w.
func WriteFrame(w io.Writer, msgType byte, payload []byte) error {
	if _, err := w.Write(Encode(msgType, payload)); err != nil {
		return fmt.Errorf("writing frame type %d: %w", msgType, err)
	}
	return nil
}

// WriteJSON marshals v and writes it as one frame to w.
func WriteJSON(w io.Writer, msgType byte, v any) error {
	frame, err := EncodeJSON(msgType, v)
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("writing frame type %d: %w", msgType, err)
	}
	return nil
}

// ReadFrame reads one frame from r. maxFrame caps the declared length;
// zero-length and oversized frames are protocol violations and the caller is
// expected to drop the connection.
func ReadFrame(r io.Reader, maxFrame uint32) (byte, []byte, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return 0, nil, fmt.Errorf("invalid frame length: 0")
	}
	if length > maxFrame {
		return 0, nil, fmt.Errorf("frame length %d exceeds cap %d", length, maxFrame)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, fmt.Errorf("reading frame body: %w", err)
	}

	return body[0], body[1:], nil
}

// DecodeJSON unmarshals a JSON payload into v.
func DecodeJSON(payload []byte, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}
	return nil
}
