package chatapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/momnect/chatlink/internal/model"
)

// MessagePage is one page of room history.
type MessagePage struct {
	Content []model.Message `json:"content"`
	Last    bool            `json:"last"`
}

// SendWithRoomRequest asks the chat service to deliver a message, creating
// the room first if the two parties have never talked about this product.
type SendWithRoomRequest struct {
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Message    string `json:"message"`
	ProductID  string `json:"productId"`
}

// SendWithRoomResponse is the created-or-found room plus the stored message.
type SendWithRoomResponse struct {
	RoomID string `json:"roomId"`
	model.Message
}

// Membership reports whether a user belongs to a room.
type Membership struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
	Member bool   `json:"member"`
}

// ListMyRooms returns the rooms the signed-in user participates in.
func (c *Client) ListMyRooms(ctx context.Context) ([]model.Room, error) {
	return call[[]model.Room](ctx, c, http.MethodGet, "/chat-service/rooms/me", nil, nil)
}

// GetRoomParticipants returns the members of a room.
func (c *Client) GetRoomParticipants(ctx context.Context, roomID string) ([]model.Participant, error) {
	path := fmt.Sprintf("/chat-service/rooms/%s/participants", url.PathEscape(roomID))
	return call[[]model.Participant](ctx, c, http.MethodGet, path, nil, nil)
}

// GetMessages returns one page of room history, oldest pages last.
func (c *Client) GetMessages(ctx context.Context, roomID string, page, size int) (MessagePage, error) {
	path := fmt.Sprintf("/chat-service/rooms/%s/messages", url.PathEscape(roomID))
	query := url.Values{
		"page": {strconv.Itoa(page)},
		"size": {strconv.Itoa(size)},
	}
	return call[MessagePage](ctx, c, http.MethodGet, path, query, nil)
}

// SendMessageCreatingRoomIfNeeded stores a message through REST, creating the
// room on first contact. Used instead of the gateway when no room exists yet.
func (c *Client) SendMessageCreatingRoomIfNeeded(ctx context.Context, req SendWithRoomRequest) (SendWithRoomResponse, error) {
	return call[SendWithRoomResponse](ctx, c, http.MethodPost, "/chat-service/rooms/0/messages/send-with-room", nil, req)
}

// CheckMembership reports whether the user belongs to the room.
func (c *Client) CheckMembership(ctx context.Context, roomID, userID string) (Membership, error) {
	path := fmt.Sprintf("/chat-service/rooms/%s/members/%s", url.PathEscape(roomID), url.PathEscape(userID))
	return call[Membership](ctx, c, http.MethodGet, path, nil, nil)
}

// GetUnreadCount returns how many messages in the room the user has not read.
func (c *Client) GetUnreadCount(ctx context.Context, roomID string) (int, error) {
	path := fmt.Sprintf("/chat-service/unread/%s", url.PathEscape(roomID))
	return call[int](ctx, c, http.MethodGet, path, nil, nil)
}
