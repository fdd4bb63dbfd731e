package domain

import "fmt"

// RoomKey names a broadcast domain. Keys are structured strings so the
// same registry serves voice rooms and server update feeds.
type RoomKey string

func VoiceRoom(serverID ServerID, channelID ChannelID) RoomKey {
	return RoomKey(fmt.Sprintf("voice-%s-%s", serverID, channelID))
}

func UpdatesRoom(serverID ServerID) RoomKey {
	return RoomKey(fmt.Sprintf("updates-%s", serverID))
}
