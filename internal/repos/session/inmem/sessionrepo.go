// Package inmem provides a session repository that holds the session data in-memory
package inmem

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/derWhity/medstock/internal/models"
	"github.com/derWhity/medstock/internal/repos"
)

const (
	// DefaultLifetime is how long a session lasts after the last update
	DefaultLifetime = 60 * time.Minute
	// Length of generated session IDs
	idLength = 64
)

// sessionRequest is a generic session request that can be sent over one of the repo's channels to execute functions
// inside the control goroutine
type sessionRequest struct {
	sessionID string
	session   *models.Session
	extend    bool
	answer    chan<- sessionResponse
}

// sessionResponse is a generic response to a session request that contains the answer to the request made
type sessionResponse struct {
	session *models.Session
	err     error
}

// SessionRepo is a session repository that stores the session data in-memory
type SessionRepo struct {
	lifetime time.Duration
	// make is a channel to trigger session creation
	make chan<- sessionRequest
	// get is a channel to request a session by ID (and to extend it optionally)
	get chan<- sessionRequest
	// del is a channel to request a session to be deleted
	del chan<- sessionRequest
}

// New creates a new session repository instance. A lifetime of zero uses the default lifetime
func New(lifetime time.Duration) *SessionRepo {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	repo := &SessionRepo{lifetime: lifetime}
	// Spin up the control goroutine
	m := make(chan sessionRequest)
	g := make(chan sessionRequest)
	d := make(chan sessionRequest)
	go repo.control(m, g, d)
	repo.make = m
	repo.get = g
	repo.del = d
	return repo
}

const letterBytes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RandomString creates a cryptographically random string with the given length
func RandomString(n int) (string, error) {
	b := make([]byte, n)
	max := big.NewInt(int64(len(letterBytes)))
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = letterBytes[idx.Int64()]
	}
	return string(b), nil
}

// ---------------------------------------------------------------------------------------------------------------------

// control is the control goroutine that runs endlessly waiting for requests for managing sessions
func (r *SessionRepo) control(make <-chan sessionRequest, get <-chan sessionRequest, del <-chan sessionRequest) {
	sessions := map[string]*models.Session{}
	// Purge channel to purge all expired sessions all ~1 minute
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	purge := ticker.C
	for { // To infinity and beyond!
		select {
		case req := <-make:
			// Create a new session
			var sessionID string
			var err error
			for sessionID == "" || sessions[sessionID] != nil {
				if sessionID, err = RandomString(idLength); err != nil {
					break
				}
			}
			if err != nil {
				req.answer <- sessionResponse{err: err}
				continue
			}
			sess := *req.session
			sess.ID = sessionID
			sess.Extend(r.lifetime)
			sessions[sessionID] = &sess
			copy := sess
			req.answer <- sessionResponse{
				session: &copy,
			}
		case req := <-get:
			// Get a session
			sess, ok := sessions[req.sessionID]
			if ok {
				if sess.Expired() {
					// Session expired
					delete(sessions, req.sessionID)
					req.answer <- sessionResponse{err: repos.ErrEntityNotExisting}
				} else {
					if req.extend {
						sess.Extend(r.lifetime)
					}
					copy := *sess
					req.answer <- sessionResponse{session: &copy}
				}
			} else {
				req.answer <- sessionResponse{err: repos.ErrEntityNotExisting}
			}
		case req := <-del:
			// Delete a session
			delete(sessions, req.sessionID)
			req.answer <- sessionResponse{}
		case <-purge:
			// Purge all expired sessions
			var toPurge []string
			for key, sess := range sessions {
				if sess.Expired() {
					toPurge = append(toPurge, key)
				}
			}
			for _, key := range toPurge {
				delete(sessions, key)
			}
		}
	}
}

func send(req sessionRequest, channel chan<- sessionRequest) sessionResponse {
	answer := make(chan sessionResponse)
	req.answer = answer
	channel <- req
	return <-answer
}

// Create stores a new session, assigning its ID and expiry. The passed session is updated with both
func (r *SessionRepo) Create(sess *models.Session) error {
	resp := send(sessionRequest{session: sess}, r.make)
	if resp.err != nil {
		return resp.err
	}
	*sess = *resp.session
	return nil
}

// GetByID returns the session associated with the given session ID and extends it's expiry if requested
func (r *SessionRepo) GetByID(sessionID string, extend bool) (*models.Session, error) {
	resp := send(sessionRequest{sessionID: sessionID, extend: extend}, r.get)
	if resp.err != nil {
		return nil, resp.err
	}
	return resp.session, nil
}

// Delete removes a session from the session storage
func (r *SessionRepo) Delete(sessionID string) error {
	resp := send(sessionRequest{sessionID: sessionID}, r.del)
	if resp.err != nil {
		return resp.err
	}
	return nil
}
