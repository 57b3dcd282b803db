package match

import "time"

// Room is an active paired session. Membership is immutable: a room is torn
// down and replaced, never mutated to add or remove a member.
type Room struct {
	ID        string
	A, B      string
	CreatedAt time.Time
}

// Partner returns the other member's id, or "" if id is not a member.
func (r Room) Partner(id string) string {
	switch id {
	case r.A:
		return r.B
	case r.B:
		return r.A
	}
	return ""
}

// Directory is the session directory: it maps a participant id to its current
// room and partner with O(1) lookup in both directions. Only the Coordinator
// writes to it, under its mutex.
type Directory struct {
	rooms     map[string]Room
	partnerOf map[string]string
	roomOf    map[string]string
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		rooms:     make(map[string]Room),
		partnerOf: make(map[string]string),
		roomOf:    make(map[string]string),
	}
}

// Link records a new room and the bidirectional partner mapping for both
// members.
func (d *Directory) Link(room Room) {
	d.rooms[room.ID] = room
	d.partnerOf[room.A] = room.B
	d.partnerOf[room.B] = room.A
	d.roomOf[room.A] = room.ID
	d.roomOf[room.B] = room.ID
}

// Partner returns the current partner of id, or "" if unpaired.
func (d *Directory) Partner(id string) string { return d.partnerOf[id] }

// RoomOf returns the id of the room the participant is in, or "".
func (d *Directory) RoomOf(id string) string { return d.roomOf[id] }

// Room returns the room with the given id.
func (d *Directory) Room(roomID string) (Room, bool) {
	room, ok := d.rooms[roomID]
	return room, ok
}

// InRoom reports whether id is currently a room member.
func (d *Directory) InRoom(id string) bool {
	_, ok := d.roomOf[id]
	return ok
}

// Drop removes id's partner and room mappings. The room record itself is
// removed via DeleteRoom; splitting the two keeps teardown robust when the
// two sides are cleaned up independently.
func (d *Directory) Drop(id string) {
	delete(d.partnerOf, id)
	delete(d.roomOf, id)
}

// DeleteRoom removes the room record. Member mappings are dropped separately.
func (d *Directory) DeleteRoom(roomID string) {
	delete(d.rooms, roomID)
}

// RoomCount returns the number of active rooms.
func (d *Directory) RoomCount() int { return len(d.rooms) }
