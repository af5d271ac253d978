// Package state persists sessions in a bbolt database so a restarted
// process can reuse the last guest token and logged-in users.
package state

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/twitter-archive/twitterkit-auth/internal/models"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory (~/.twitterkit/).
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	// It holds token secrets.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket      = []byte("app")
	activeKey      = []byte("active_session")
	guestBucket    = []byte("guest")
	guestKey       = []byte("session")
	sessionsBucket = []byte("sessions")
)

func sessionKey(id int64) []byte {
	return []byte(strconv.FormatInt(id, 10))
}

// State wraps a bbolt database for all persistent session state.
type State struct {
	db *bolt.DB
}

// LoadAt opens a state database at the given path, creating it and its
// buckets if they do not exist.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{appBucket, guestBucket, sessionsBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// GuestSession returns the stored guest session, or nil if none is
// stored. The session may be expired; callers check validity.
func (s *State) GuestSession() (*models.GuestSession, error) {
	var gs *models.GuestSession

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(guestBucket).Get(guestKey)
		if v == nil {
			return nil
		}

		gs = &models.GuestSession{}

		return json.Unmarshal(v, gs)
	})
	if err != nil {
		return nil, fmt.Errorf("reading guest session: %w", err)
	}

	return gs, nil
}

// SetGuestSession replaces the stored guest session.
func (s *State) SetGuestSession(gs *models.GuestSession) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(gs)
		if err != nil {
			return err
		}

		return tx.Bucket(guestBucket).Put(guestKey, data)
	})
}

// ClearGuestSession removes the stored guest session.
func (s *State) ClearGuestSession() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(guestBucket).Delete(guestKey)
	})
}

// Session returns the user session with the given ID, or nil if not found.
func (s *State) Session(id int64) (*models.TwitterSession, error) {
	var ts *models.TwitterSession

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(sessionsBucket).Get(sessionKey(id))
		if v == nil {
			return nil
		}

		ts = &models.TwitterSession{}

		return json.Unmarshal(v, ts)
	})

	return ts, err
}

// SetSession stores a user session, replacing any with the same ID.
func (s *State) SetSession(ts *models.TwitterSession) error {
	if ts.ID == models.LoggedOutUserID {
		return fmt.Errorf("user session requires a non-zero id")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(ts)
		if err != nil {
			return err
		}

		return tx.Bucket(sessionsBucket).Put(sessionKey(ts.ID), data)
	})
}

// ClearSession removes a user session. If it was the active session, the
// active marker is cleared as well.
func (s *State) ClearSession(id int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(sessionsBucket).Delete(sessionKey(id)); err != nil {
			return err
		}

		app := tx.Bucket(appBucket)
		if v := app.Get(activeKey); v != nil && string(v) == string(sessionKey(id)) {
			return app.Delete(activeKey)
		}

		return nil
	})
}

// Sessions returns all stored user sessions ordered by ID.
func (s *State) Sessions() ([]models.TwitterSession, error) {
	var sessions []models.TwitterSession

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionsBucket).ForEach(func(k, v []byte) error {
			var ts models.TwitterSession
			if err := json.Unmarshal(v, &ts); err != nil {
				return err
			}

			sessions = append(sessions, ts)

			return nil
		})
	})

	// Keys are decimal strings, so byte order is not numeric order.
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })

	return sessions, err
}

// SetActiveSession stores ts and marks it as the active user.
func (s *State) SetActiveSession(ts *models.TwitterSession) error {
	if err := s.SetSession(ts); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(appBucket).Put(activeKey, sessionKey(ts.ID))
	})
}

// ActiveSession returns the active user session, or nil if no user is
// logged in.
func (s *State) ActiveSession() (*models.TwitterSession, error) {
	var id int64

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(appBucket).Get(activeKey)
		if v == nil {
			return nil
		}

		var err error
		id, err = strconv.ParseInt(string(v), 10, 64)

		return err
	})
	if err != nil || id == models.LoggedOutUserID {
		return nil, err
	}

	return s.Session(id)
}
