package model

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/Zain0205/travelin-chat/internal/api"
	"github.com/Zain0205/travelin-chat/internal/app"
	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/protocol"
	"github.com/Zain0205/travelin-chat/internal/status"
)

// Daemon is the part of the control API the TUI uses.
type Daemon interface {
	GetStatus(ctx context.Context) (*api.StatusResponse, error)
	Retry(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	ListConversations(ctx context.Context) (*api.ConversationsResponse, error)
	OpenConversation(ctx context.Context, counterpartID int) (*api.ThreadResponse, error)
	CloseConversation(ctx context.Context, counterpartID int) error
	GetThread(ctx context.Context) (*api.ThreadResponse, error)
	InputChanged(ctx context.Context, counterpartID, text string) error
	Send(ctx context.Context, counterpartID, body string) (*api.ThreadResponse, error)
}

// Change reports which parts of the view model an update touched.
type Change uint8

const (
	ChangeStatus Change = 1 << iota
	ChangeList
	ChangeThread
	ChangeFlash
	ChangeSession
	// ChangeSent means the daemon acknowledged a send; the composer clears.
	ChangeSent
)

// Has reports whether c includes other.
func (c Change) Has(other Change) bool { return c&other != 0 }

// ViewModel caches daemon state fed by the event stream.
type ViewModel struct {
	mu sync.RWMutex

	daemon        Daemon
	status        api.StatusResponse
	conversations []chat.Conversation
	thread        chat.Thread
	sending       bool
	flash         *notice.Notice
}

// NewViewModel creates a view model backed by d.
func NewViewModel(d Daemon) *ViewModel {
	return &ViewModel{daemon: d}
}

// Load fetches the full state once, e.g. at startup or after login.
func (vm *ViewModel) Load(ctx context.Context) error {
	st, err := vm.daemon.GetStatus(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = *st
	vm.mu.Unlock()
	if !st.LoggedIn {
		return nil
	}

	list, err := vm.daemon.ListConversations(ctx)
	if err != nil {
		return err
	}
	th, err := vm.daemon.GetThread(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.conversations = list.Conversations
	vm.setThreadLocked(th)
	vm.mu.Unlock()
	return nil
}

// Apply folds one daemon event into the model.
func (vm *ViewModel) Apply(evt *api.Event) Change {
	switch evt.Kind {
	case bus.KindStatusChanged:
		var sc status.StatusChange
		if json.Unmarshal(evt.Payload, &sc) != nil {
			return 0
		}
		vm.mu.Lock()
		vm.status.State = string(sc.To)
		vm.status.StateSince = evt.Timestamp
		vm.mu.Unlock()
		return ChangeStatus

	case bus.KindNoticeShown:
		var n notice.Notice
		if json.Unmarshal(evt.Payload, &n) != nil {
			return 0
		}
		vm.mu.Lock()
		vm.flash = &n
		vm.mu.Unlock()
		return ChangeFlash

	case bus.KindNoticeExpired:
		var n notice.Notice
		if json.Unmarshal(evt.Payload, &n) != nil {
			return 0
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if vm.flash == nil || vm.flash.ID != n.ID {
			return 0
		}
		vm.flash = nil
		return ChangeFlash

	case bus.KindListUpdated:
		var list []chat.Conversation
		if json.Unmarshal(evt.Payload, &list) != nil {
			return 0
		}
		vm.mu.Lock()
		vm.conversations = list
		vm.mu.Unlock()
		return ChangeList

	case bus.KindThreadUpdated:
		var th chat.Thread
		if json.Unmarshal(evt.Payload, &th) != nil {
			return 0
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if th.CounterpartID != vm.thread.CounterpartID {
			return 0
		}
		vm.thread = th
		return ChangeThread

	case bus.KindPartnerTyping:
		var ut protocol.UserTyping
		if json.Unmarshal(evt.Payload, &ut) != nil {
			return 0
		}
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if ut.UserID != vm.thread.CounterpartID {
			return 0
		}
		vm.thread.PartnerTyping = ut.IsTyping
		return ChangeThread

	case bus.KindSendAck, bus.KindSendFailed:
		vm.mu.Lock()
		vm.sending = false
		vm.mu.Unlock()
		if evt.Kind == bus.KindSendAck {
			return ChangeThread | ChangeSent
		}
		return ChangeThread

	case bus.KindLoggedIn:
		var s app.Session
		if json.Unmarshal(evt.Payload, &s) != nil {
			return 0
		}
		vm.mu.Lock()
		vm.status.LoggedIn = true
		vm.status.UserID = s.UserID
		vm.status.Role = s.Role
		vm.mu.Unlock()
		return ChangeSession | ChangeStatus

	case bus.KindLoggedOut:
		vm.mu.Lock()
		vm.status.LoggedIn = false
		vm.status.UserID = 0
		vm.status.Role = ""
		vm.conversations = nil
		vm.thread = chat.Thread{}
		vm.sending = false
		vm.mu.Unlock()
		return ChangeSession | ChangeStatus | ChangeList | ChangeThread
	}
	return 0
}

// Login signs in through the daemon and reloads the state.
func (vm *ViewModel) Login(ctx context.Context, email, password string) error {
	if _, err := vm.daemon.Login(ctx, email, password); err != nil {
		return err
	}
	return vm.Load(ctx)
}

// Retry asks the daemon to reconnect.
func (vm *ViewModel) Retry(ctx context.Context) error {
	st, err := vm.daemon.Retry(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = *st
	vm.mu.Unlock()
	return nil
}

// Open makes counterpartID the active conversation.
func (vm *ViewModel) Open(ctx context.Context, counterpartID int) error {
	th, err := vm.daemon.OpenConversation(ctx, counterpartID)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.setThreadLocked(th)
	for i := range vm.conversations {
		if vm.conversations[i].CounterpartID == counterpartID {
			vm.conversations[i].UnreadCount = 0
		}
	}
	vm.mu.Unlock()
	return nil
}

// Close leaves the active conversation.
func (vm *ViewModel) Close(ctx context.Context) error {
	vm.mu.Lock()
	id := vm.thread.CounterpartID
	vm.thread = chat.Thread{}
	vm.mu.Unlock()
	if id == 0 {
		return nil
	}
	return vm.daemon.CloseConversation(ctx, id)
}

// Input reports a composer change for the active conversation.
func (vm *ViewModel) Input(ctx context.Context, text string) error {
	return vm.daemon.InputChanged(ctx, vm.activeID(), text)
}

// Send sends body to the active conversation.
func (vm *ViewModel) Send(ctx context.Context, body string) error {
	th, err := vm.daemon.Send(ctx, vm.activeID(), body)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.setThreadLocked(th)
	vm.mu.Unlock()
	return nil
}

// Status returns a snapshot of the daemon status.
func (vm *ViewModel) Status() api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Conversations returns the cached conversation list.
func (vm *ViewModel) Conversations() []chat.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.conversations
}

// Thread returns the open conversation and whether a send is in flight.
func (vm *ViewModel) Thread() (chat.Thread, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.thread, vm.sending
}

// Flash returns the notice currently shown, if any.
func (vm *ViewModel) Flash() *notice.Notice {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.flash
}

// ConversationName returns the display name of counterpartID.
func (vm *ViewModel) ConversationName(counterpartID int) string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for _, c := range vm.conversations {
		if c.CounterpartID == counterpartID && c.Name != "" {
			return c.Name
		}
	}
	return "User " + strconv.Itoa(counterpartID)
}

func (vm *ViewModel) activeID() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.thread.CounterpartID == 0 {
		return ""
	}
	return strconv.Itoa(vm.thread.CounterpartID)
}

func (vm *ViewModel) setThreadLocked(th *api.ThreadResponse) {
	vm.thread = th.Thread
	vm.sending = th.Sending
}
