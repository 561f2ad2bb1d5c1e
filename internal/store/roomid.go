package store

import "crypto/rand"

// roomIDAlphabet excludes visually ambiguous characters (0/O, 1/I), matching
// the teacher's generateRoomCode intent of producing codes humans can read
// off a screen and type into a join box.
const roomIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomIDLength = 6

// GenerateRoomID produces a random room identifier and retries against a
// shared store until it finds one not already registered, up to a bounded
// number of attempts (spec §3 "stable identifier ... globally unique").
func GenerateRoomID(s Store) (string, error) {
	const maxAttempts = 10
	for i := 0; i < maxAttempts; i++ {
		candidate := randomRoomID()
		if _, err := s.Get(candidate); err != nil {
			return candidate, nil
		}
	}
	return "", ErrCodeExhausted
}

func randomRoomID() string {
	b := make([]byte, roomIDLength)
	_, _ = rand.Read(b)
	for i := range b {
		b[i] = roomIDAlphabet[int(b[i])%len(roomIDAlphabet)]
	}
	return string(b)
}
