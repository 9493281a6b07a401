package mockapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/analyticbot/apiclient/auth"
	"github.com/analyticbot/apiclient/services"
)

// Demo account seeded into every server.
const (
	DemoUserID   int64 = 1
	DemoEmail          = "demo@analyticbot.org"
	DemoPassword       = "demo-password"
)

type account struct {
	user     auth.User
	password [sha256.Size]byte
}

type mtprotoState struct {
	status    services.MTProtoStatus
	codeHash  string
	needs2FA  bool
	qrPolls   map[string]int
	qrExpires map[string]time.Time
}

// store holds mock backend state in memory.
type store struct {
	mu sync.RWMutex

	accounts map[int64]*account
	byEmail  map[string]int64
	nextUser int64

	channels    map[int64]services.Channel
	nextChannel int64

	media   []services.MediaFile
	mtproto map[int64]*mtprotoState
}

func newStore() *store {
	s := &store{
		accounts:    make(map[int64]*account),
		byEmail:     make(map[string]int64),
		nextUser:    DemoUserID,
		channels:    make(map[int64]services.Channel),
		nextChannel: 1,
		mtproto:     make(map[int64]*mtprotoState),
	}
	_, _ = s.register(DemoEmail, DemoPassword, "demo")
	created := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)
	for _, seed := range []struct{ username, title string }{
		{"analyticbot_news", "AnalyticBot News"},
		{"golang_weekly", "Go Weekly"},
	} {
		_, _ = s.createChannel(seed.username, seed.title, "", created)
	}
	return s
}

func hashPassword(p string) [sha256.Size]byte {
	return sha256.Sum256([]byte(p))
}

func (s *store) register(email, password, username string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := s.byEmail[key]; ok {
		return auth.User{}, errConflict("Email already registered")
	}
	if username == "" {
		username, _, _ = strings.Cut(key, "@")
	}
	id := s.nextUser
	s.nextUser++
	acc := &account{
		user:     auth.User{ID: id, Email: email, Username: username, Role: "user"},
		password: hashPassword(password),
	}
	s.accounts[id] = acc
	s.byEmail[key] = id
	return acc.user, nil
}

func (s *store) authenticate(email, password string) (auth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return auth.User{}, false
	}
	acc := s.accounts[id]
	want := hashPassword(password)
	if subtle.ConstantTimeCompare(acc.password[:], want[:]) != 1 {
		return auth.User{}, false
	}
	return acc.user, true
}

func (s *store) user(id int64) (auth.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return auth.User{}, false
	}
	return acc.user, true
}

func (s *store) listChannels() []services.Channel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *store) channel(id int64) (services.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

func (s *store) createChannel(username, title, description string, at time.Time) (services.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.TrimPrefix(username, "@")
	for _, ch := range s.channels {
		if strings.EqualFold(ch.Username, username) {
			return services.Channel{}, errConflict("Channel already added")
		}
	}
	if title == "" {
		title = username
	}
	id := s.nextChannel
	s.nextChannel++
	rng := seeded(id, "channel")
	ch := services.Channel{
		ID:              id,
		TelegramID:      -1000000000000 - rng.Int64N(1_000_000_000),
		Username:        username,
		Title:           title,
		Description:     description,
		SubscriberCount: 1000 + rng.Int64N(250_000),
		IsActive:        true,
		CreatedAt:       at.UTC(),
	}
	s.channels[id] = ch
	return ch, nil
}

func (s *store) deleteChannel(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return false
	}
	delete(s.channels, id)
	return true
}

func (s *store) addMedia(f services.MediaFile) services.MediaFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	f.ID = uuid.NewString()
	f.URL = fmt.Sprintf("https://cdn.analyticbot.org/media/%s/%s", f.ID, f.FileName)
	s.media = append(s.media, f)
	return f
}

func (s *store) listMedia(channelID int64) []services.MediaFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]services.MediaFile, 0, len(s.media))
	for _, f := range s.media {
		if channelID == 0 || f.ChannelID == channelID {
			out = append(out, f)
		}
	}
	return out
}

// mtprotoFor returns the MTProto state of a user, creating it on first use.
// Callers must hold s.mu for writing.
func (s *store) mtprotoFor(userID int64) *mtprotoState {
	st, ok := s.mtproto[userID]
	if !ok {
		st = &mtprotoState{
			qrPolls:   make(map[string]int),
			qrExpires: make(map[string]time.Time),
		}
		s.mtproto[userID] = st
	}
	return st
}
