package tui

import (
	"context"
	"time"

	"github.com/Zain0205/travelin-chat/internal/api"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/tui/keys"
	"github.com/Zain0205/travelin-chat/internal/tui/model"
	"github.com/Zain0205/travelin-chat/internal/tui/ui"
	"github.com/Zain0205/travelin-chat/internal/tui/views"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	pageLogin = "login"
	pageChats = "chats"
	pageChat  = "chat"

	// rewatchDelay spaces reconnects of the event stream.
	rewatchDelay = time.Second
	rpcTimeout   = 10 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	daemon    *api.Client
	registry  *keys.Registry
	theme     *ui.Theme
	statusBar *views.StatusBar
	flashBar  *ui.FlashBar
	chatList  *views.ConversationList
	thread    *views.MessageThread
	loginView *views.LoginView
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        model.NewViewModel(c),
		daemon:    c,
		registry:  keys.NewRegistry(),
		theme:     theme,
		statusBar: views.NewStatusBar(theme),
		flashBar:  ui.NewFlashBar(theme),
		chatList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		loginView: views.NewLoginView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()
	a.statusBar.SetHints(a.registry.Hints(pageChats))

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.Stop() },
	})
	a.registry.AddGlobal(&keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:retry", Visible: true,
		Handler: a.retry,
	})
	a.registry.AddView(pageChats, &keys.Action{
		Key:         tcell.KeyEnter,
		Description: "enter:open", Visible: true,
		Handler: func() {
			if id := a.chatList.Selected(); id != 0 {
				a.openChat(id)
			}
		},
	})
	a.registry.AddView(pageChat, &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Description: "i:compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageChat, &keys.Action{
		Key:         tcell.KeyEscape,
		Description: "esc:back", Visible: true,
		Handler:     a.closeChat,
	})
}

func (a *App) setupCallbacks() {
	a.loginView.SetOnSubmit(func(email, password string) {
		a.async(func(ctx context.Context) error {
			if err := a.vm.Login(ctx, email, password); err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() {
				a.loginView.Reset()
				a.render(model.ChangeSession | model.ChangeStatus | model.ChangeList)
			})
			return nil
		})
	})

	a.thread.SetOnInput(func(text string) {
		a.async(func(ctx context.Context) error { return a.vm.Input(ctx, text) })
	})
	a.thread.SetOnSend(func(text string) {
		a.async(func(ctx context.Context) error {
			if err := a.vm.Send(ctx, text); err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() { a.render(model.ChangeThread) })
			return nil
		})
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageLogin, center(a.loginView, 60, 9), true, false)
	a.pages.AddPage(pageChats, a.chatList, true, true)
	a.pages.AddPage(pageChat, a.thread, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.flashBar, 1, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		// Text inputs get every key; Esc leaves the composer.
		switch a.app.GetFocus().(type) {
		case *tview.InputField, *tview.Button:
			if event.Key() == tcell.KeyEscape && currentPage == pageChat {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		a.async(func(ctx context.Context) error {
			if err := a.vm.Load(ctx); err != nil {
				return err
			}
			a.app.QueueUpdateDraw(func() {
				a.render(model.ChangeSession | model.ChangeStatus | model.ChangeList | model.ChangeThread)
			})
			return nil
		})
		a.watch()
	}()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// watch folds daemon events into the view model until the app stops,
// resubscribing if the stream breaks.
func (a *App) watch() {
	for a.ctx.Err() == nil {
		stream, err := a.daemon.WatchEvents(a.ctx, "")
		if err == nil {
			for {
				evt, err := stream.Recv()
				if err != nil {
					break
				}
				if change := a.vm.Apply(evt); change != 0 {
					a.app.QueueUpdateDraw(func() { a.render(change) })
				}
			}
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(rewatchDelay):
		}
		// Events may have been missed while the stream was down.
		if err := a.vm.Load(a.ctx); err == nil {
			a.app.QueueUpdateDraw(func() {
				a.render(model.ChangeSession | model.ChangeStatus | model.ChangeList | model.ChangeThread)
			})
		}
	}
}

// render redraws the views named by change. Must run on the UI goroutine.
func (a *App) render(change model.Change) {
	st := a.vm.Status()
	if change.Has(model.ChangeStatus) {
		a.statusBar.SetStatus(st)
	}
	if change.Has(model.ChangeSession) {
		a.thread.SetIdentity(st.UserID)
		page, _ := a.pages.GetFrontPage()
		switch {
		case !st.LoggedIn:
			a.pages.SwitchToPage(pageLogin)
			a.app.SetFocus(a.loginView)
		case page == pageLogin:
			a.showPage(pageChats)
		}
	}
	if change.Has(model.ChangeList) {
		a.chatList.Update(a.vm.Conversations())
	}
	if change.Has(model.ChangeThread) {
		th, sending := a.vm.Thread()
		if th.CounterpartID != 0 {
			a.thread.SetName(a.vm.ConversationName(th.CounterpartID))
		}
		a.thread.Update(th, sending)
	}
	if change.Has(model.ChangeSent) {
		a.thread.ClearInput()
	}
	if change.Has(model.ChangeFlash) {
		a.flashBar.Update(a.vm.Flash())
	}
}

func (a *App) showPage(name string) {
	a.pages.SwitchToPage(name)
	a.statusBar.SetHints(a.registry.Hints(name))
	switch name {
	case pageChats:
		a.app.SetFocus(a.chatList)
	case pageChat:
		a.app.SetFocus(a.thread.Composer())
	}
}

func (a *App) openChat(counterpartID int) {
	a.async(func(ctx context.Context) error {
		if err := a.vm.Open(ctx, counterpartID); err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.thread.ClearInput()
			a.render(model.ChangeThread | model.ChangeList)
			a.showPage(pageChat)
		})
		return nil
	})
}

func (a *App) closeChat() {
	a.showPage(pageChats)
	a.async(a.vm.Close)
}

func (a *App) retry() {
	if a.vm.Status().State == string(status.Connected) {
		return
	}
	a.async(func(ctx context.Context) error {
		if err := a.vm.Retry(ctx); err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() { a.render(model.ChangeStatus) })
		return nil
	})
}

// async runs fn off the UI goroutine and flashes its error.
func (a *App) async(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		defer cancel()
		if err := fn(ctx); err != nil && a.ctx.Err() == nil {
			a.flashError(err)
		}
	}()
}

// flashError shows a local error until it expires or a daemon notice
// replaces it.
func (a *App) flashError(err error) {
	n := &notice.Notice{Level: notice.Error, Text: err.Error()}
	a.app.QueueUpdateDraw(func() { a.flashBar.Update(n) })
	time.AfterFunc(notice.DefaultTTL, func() {
		a.app.QueueUpdateDraw(func() { a.flashBar.Update(a.vm.Flash()) })
	})
}

func center(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 1, true).
			AddItem(nil, 0, 1, false), width, 1, true).
		AddItem(nil, 0, 1, false)
}
