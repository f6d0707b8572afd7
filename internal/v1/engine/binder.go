package engine

import (
	"context"

	"go.uber.org/zap"

	"github.com/quizclash/backend/go/internal/v1/logging"
	"github.com/quizclash/backend/go/internal/v1/types"
)

// BindSocket stores sid on the participant record and indexes it for
// disconnect handling. Re-binding the same participant under a new sid
// evicts the old sid from the index.
func (rg *Registry) BindSocket(pin types.PinType, participantID types.ParticipantIDType, sid types.SocketIDType) error {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	room, err := rg.getRoomLocked(pin)
	if err != nil {
		return err
	}
	participant := room.findParticipantLocked(participantID)
	if participant == nil {
		return ErrParticipantNotFound
	}

	if prev := participant.SocketID; prev != "" && prev != sid {
		delete(rg.sidIndex, prev)
	}
	participant.SocketID = sid
	rg.sidIndex[sid] = binding{pin: room.Pin, participantID: participantID}
	return nil
}

// GetBound resolves a socket to its (pin, participantId) association.
func (rg *Registry) GetBound(sid types.SocketIDType) (types.PinType, types.ParticipantIDType, bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	b, ok := rg.sidIndex[sid]
	if !ok {
		return "", "", false
	}
	return b.pin, b.participantID, true
}

// UnbindSocket handles a transport disconnect. The disconnect is a leave:
// the bound participant is removed from their room with full leaveRoom
// side-effects (host promotion, room deletion). The second return is false
// when the sid was not bound to anything.
func (rg *Registry) UnbindSocket(ctx context.Context, sid types.SocketIDType) (*LeaveResult, bool) {
	rg.mu.Lock()
	defer rg.mu.Unlock()

	b, ok := rg.sidIndex[sid]
	if !ok {
		return nil, false
	}
	delete(rg.sidIndex, sid)

	room, err := rg.getRoomLocked(b.pin)
	if err != nil {
		return nil, false
	}

	res, err := rg.leaveRoomLocked(ctx, room, b.participantID)
	if err != nil {
		logging.Warn(ctx, "Unbind found stale sid mapping",
			zap.String("sid", string(sid)),
			zap.String("pin", string(b.pin)),
			zap.Error(err),
		)
		return nil, false
	}

	rg.persistLocked()
	return res, true
}
