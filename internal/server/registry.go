package server

import (
	"crypto/rand"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	errRoomNotFound = errors.New("room not found")
	errGameStarted  = errors.New("game already started")
	errStateChanged = errors.New("state changed")
)

// Registry owns every live room plus the connection-to-room side table.
// All room state is mutated under its mutex; handlers pass closures to
// UpdateRoom so claims, resolution and round advancement stay atomic.
type Registry struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	conns     map[string]string
	nextOrder int
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		conns: make(map[string]string),
	}
}

// Excludes I, O, 0 and 1 so codes survive being read out loud.
const roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func newRoomCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "AAAA"
	}
	for i := range buf {
		buf[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(buf)
}

func (r *Registry) CreateRoom(connID, playerName string, settings Settings) *Room {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newRoomCode()
	for _, taken := r.rooms[id]; taken; _, taken = r.rooms[id] {
		id = newRoomCode()
	}

	r.nextOrder++
	founder := &Player{
		ConnID:       connID,
		Name:         playerName,
		IsGameMaster: true,
		JoinOrder:    r.nextOrder,
	}
	room := &Room{
		ID:           id,
		Players:      map[string]*Player{connID: founder},
		GameMasterID: connID,
		State:        stateWaiting,
		Settings:     settings,
		CreatedAt:    time.Now().UTC(),
	}
	r.rooms[id] = room
	r.conns[connID] = id
	return room
}

func (r *Registry) JoinRoom(roomID, connID, playerName string) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[strings.ToUpper(roomID)]
	if !ok {
		return nil, errRoomNotFound
	}
	if room.State != stateWaiting {
		return nil, errGameStarted
	}
	r.nextOrder++
	room.Players[connID] = &Player{
		ConnID:    connID,
		Name:      playerName,
		JoinOrder: r.nextOrder,
	}
	r.conns[connID] = room.ID
	return room, nil
}

func (r *Registry) GetRoom(roomID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[strings.ToUpper(roomID)]
	return room, ok
}

// RoomForConn resolves the room a connection joined, if any.
func (r *Registry) RoomForConn(connID string) (*Room, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	room, ok := r.rooms[roomID]
	return room, ok
}

func (r *Registry) UpdateRoom(roomID string, update func(room *Room) error) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errRoomNotFound
	}
	if err := update(room); err != nil {
		return nil, err
	}
	return room, nil
}

// UpdateRoomForConn mutates the room the connection belongs to.
func (r *Registry) UpdateRoomForConn(connID string, update func(room *Room) error) (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.conns[connID]
	if !ok {
		return nil, errRoomNotFound
	}
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, errRoomNotFound
	}
	if err := update(room); err != nil {
		return nil, err
	}
	return room, nil
}

// Disconnect removes the connection's player from its room. The room is
// destroyed as soon as it empties; a departing master hands the role to the
// earliest-joined remaining member. A disconnected claimant's claims and
// score stay on the round untouched.
func (r *Registry) Disconnect(connID string) (room *Room, remaining int, destroyed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.conns[connID]
	if !ok {
		return nil, 0, false
	}
	delete(r.conns, connID)
	room, ok = r.rooms[roomID]
	if !ok {
		return nil, 0, false
	}
	delete(room.Players, connID)
	if len(room.Players) == 0 {
		delete(r.rooms, roomID)
		return room, 0, true
	}
	if room.GameMasterID == connID {
		next := room.orderedPlayers()[0]
		next.IsGameMaster = true
		room.GameMasterID = next.ConnID
	}
	return room, len(room.Players), false
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
