package chat

import "deepchat/internal/types"

// DefaultWindowSize bounds the non-system tail submitted to the completion
// service.
const DefaultWindowSize = 50

// BuildWindow selects the message subset for one remote exchange: the system
// message (always first, always included, never trimmed) plus the last max
// non-system messages in original order. With no system message the window
// is just the trimmed tail.
func BuildWindow(messages []types.Message, max int) []types.Message {
	if max <= 0 {
		max = DefaultWindowSize
	}

	var system *types.Message
	rest := make([]types.Message, 0, len(messages))
	for i := range messages {
		if system == nil && messages[i].Role == types.RoleSystem {
			system = &messages[i]
			continue
		}
		rest = append(rest, messages[i])
	}

	if len(rest) > max {
		rest = rest[len(rest)-max:]
	}
	if system == nil {
		return rest
	}

	window := make([]types.Message, 0, len(rest)+1)
	window = append(window, *system)
	return append(window, rest...)
}
