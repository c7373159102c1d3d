package gateway

import (
	"replygen/pkg/api"
)

// Re-export types from api package via aliases so channel code can depend on
// the gateway package alone.
type Channel = api.Channel
type SignalingChannel = api.SignalingChannel
type MessageResponder = api.MessageResponder
type ChannelContext = api.ChannelContext
type UnifiedMessage = api.UnifiedMessage
type SessionContext = api.SessionContext

type MessageHandler = api.MessageHandler
