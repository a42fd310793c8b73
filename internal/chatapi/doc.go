// Package chatapi is the client for the chat REST service, the collaborator
// that owns rooms and message history. The transport core never persists chat
// data itself; history, room listings, and room creation all go through here.
package chatapi
