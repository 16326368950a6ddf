package wire

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opd-ai/groupchat/message"
)

// Actions understood by the server.
const (
	ActionSendGroupMsg        = "send_group_msg"
	ActionSendGroupForwardMsg = "send_group_forward_msg"
	ActionGroupPicUp          = "group_pic_up"
)

// Push types.
const (
	PostTypeMessageReceipt = "message_receipt"
)

// Negotiation results of group_pic_up.
const (
	PicUpExists   = "exists"
	PicUpUpload   = "upload"
	PicUpRejected = "rejected"
)

// Request is an outbound action.
type Request struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// Response answers a Request with the same Echo.
type Response struct {
	Status  string          `json:"status"`
	RetCode int32           `json:"retcode"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Echo    string          `json:"echo"`
}

// frame is the union of responses and pushes used for routing.
type frame struct {
	Echo     string `json:"echo"`
	PostType string `json:"post_type"`
}

// Receipt is the message_receipt push.
type Receipt struct {
	PostType string `json:"post_type"`
	GroupID  int64  `json:"group_id"`
	Random   uint32 `json:"random"`
	Sequence int32  `json:"sequence"`
	Time     int64  `json:"time"`
}

// Segment is one encoded message element.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Node is one encoded forward node.
type Node struct {
	Type string   `json:"type"`
	Data NodeData `json:"data"`
}

// NodeData holds the fields of a forward node.
type NodeData struct {
	UserID   int64     `json:"user_id"`
	Nickname string    `json:"nickname"`
	Time     int64     `json:"time"`
	Content  []Segment `json:"content"`
}

// SendGroupMsgParams are the params of send_group_msg.
type SendGroupMsgParams struct {
	GroupID int64     `json:"group_id"`
	Message []Segment `json:"message"`
	Random  uint32    `json:"random"`
	Forward bool      `json:"forward,omitempty"`
}

// SendGroupForwardMsgParams are the params of send_group_forward_msg.
type SendGroupForwardMsgParams struct {
	GroupID  int64  `json:"group_id"`
	Messages []Node `json:"messages"`
	Random   uint32 `json:"random"`
}

// SendResult is the data of a successful send.
type SendResult struct {
	MessageID int64 `json:"message_id"`
	Time      int64 `json:"time"`
}

// GroupPicUpParams are the params of group_pic_up.
type GroupPicUpParams struct {
	GroupID    int64  `json:"group_id"`
	MD5        string `json:"md5"`
	Size       int64  `json:"size"`
	Format     string `json:"format"`
	ResourceID string `json:"resource_id"`
}

// GroupPicUpResult is the data of group_pic_up.
type GroupPicUpResult struct {
	Result     string   `json:"result"`
	ResourceID string   `json:"resource_id,omitempty"`
	UploadKey  []byte   `json:"upload_key,omitempty"`
	Endpoints  []string `json:"endpoints,omitempty"`
	Code       int32    `json:"code,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// EncodeChain converts chain into segments. Forward bundles cannot be
// encoded as segments and are sent with send_group_forward_msg.
func EncodeChain(chain message.Chain) ([]Segment, error) {
	segments := make([]Segment, 0, chain.Len())
	for _, e := range chain.Elements() {
		switch v := e.(type) {
		case message.PlainText:
			segments = append(segments, Segment{Type: "text", Data: map[string]any{"text": v.Content}})
		case message.Image:
			segments = append(segments, Segment{Type: "image", Data: map[string]any{"file": v.ID}})
		case message.At:
			segments = append(segments, Segment{Type: "at", Data: map[string]any{"qq": v.Target, "name": v.Display}})
		case message.Face:
			segments = append(segments, Segment{Type: "face", Data: map[string]any{"id": v.ID}})
		case message.QuoteReply:
			segments = append(segments, encodeQuote(v))
		default:
			return nil, fmt.Errorf("cannot encode %s element as segment", e.Kind())
		}
	}
	return segments, nil
}

func encodeQuote(q message.QuoteReply) Segment {
	data := map[string]any{}
	if src := q.Source; src != nil {
		data["random"] = src.Random
		data["sender"] = src.SenderID
		data["group"] = src.GroupID
		data["time"] = src.Time.Unix()
		if seq, ok := src.SequenceID(); ok {
			data["seq"] = seq
		}
	}
	return Segment{Type: "reply", Data: data}
}

// EncodeForward converts a forward bundle into nodes.
func EncodeForward(fwd *message.ForwardMessage) ([]Node, error) {
	nodes := make([]Node, 0, len(fwd.Nodes))
	for i, n := range fwd.Nodes {
		content, err := EncodeChain(n.Message)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		nodes = append(nodes, Node{
			Type: "node",
			Data: NodeData{
				UserID:   n.SenderID,
				Nickname: n.SenderName,
				Time:     n.Time.Unix(),
				Content:  content,
			},
		})
	}
	return nodes, nil
}

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0)
}
