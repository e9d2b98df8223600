package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/auth"
	"github.com/JAssertz/better-convex-sub001/internal/engine"
	"github.com/JAssertz/better-convex-sub001/pkg"
)

var Upgrader = websocket.Upgrader{
	WriteBufferSize: 1024 * 10,
	ReadBufferSize:  1024 * 10,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes a DB over websocket connections. Users authenticate once
// per connection; every subsequent request runs under that user's actor.
type Server struct {
	Locker sync.RWMutex
	DB     *engine.DB
	Users  pkg.Map[string, *auth.User]
}

func NewServer(db *engine.DB) *Server {
	return &Server{DB: db, Users: pkg.Map[string, *auth.User]{}}
}

func (s *Server) GetLocker() *sync.RWMutex { return &s.Locker }

func (s *Server) CreateUser(name, password string, roles ...string) (*auth.User, error) {
	var user *auth.User
	var err error
	pkg.LockWrap(s, func() {
		for _, u := range s.Users {
			if u.Name == name {
				err = apperr.Validation("user %s already exists", name)
				return
			}
		}
		user = auth.NewUser(name, password, roles...)
		s.Users.Set(user.Id, user)
	})
	return user, err
}

func (s *Server) AddRootUser(name, password string) *auth.User {
	user := auth.NewRootUser(name, password)
	pkg.LockWrap(s, func() { s.Users.Set(user.Id, user) })
	return user
}

func (s *Server) DeleteUser(name string) bool {
	deleted := false
	pkg.LockWrap(s, func() {
		for id, u := range s.Users {
			if u.Name == name {
				s.Users.Delete(id)
				deleted = true
				return
			}
		}
	})
	return deleted
}

func (s *Server) validateUser(name, password string) *auth.User {
	if name == "" {
		return nil
	}
	var user *auth.User
	pkg.RLockWrap(s, func() {
		for _, u := range s.Users {
			if u.Name == name && u.ValidateUser(password) {
				user = u
				return
			}
		}
	})
	return user
}

// Listen serves until SIGTERM or interrupt, flushing to disk on the write
// ticker and once more on shutdown.
func (s *Server) Listen(port int) {
	exit := make(chan os.Signal, 2)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		ReadTimeout:  0,
		WriteTimeout: 0,
	}

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	http.HandleFunc("/", s.HandleConnection)

	go func() {
		err := srv.ListenAndServe()
		if err != http.ErrServerClosed {
			pkg.Log().Fatal(err)
		}
	}()

	go s.flushLoop()

	pkg.Log().Infof("bcdb listening on port %d", port)
	<-exit
	pkg.Log().Debug("shutting down")
	srv.Shutdown(context.Background())
	if err := s.DB.Store.WriteToFile(); err != nil {
		pkg.Log().Errorf("final flush failed: %v", err)
	}
}

func (s *Server) flushLoop() {
	settings := s.DB.Store.WriteSettings
	if settings.InMem {
		return
	}

	ticker := time.NewTicker(settings.WriteInterval)
	defer ticker.Stop()

	var last_write time.Time
	for range ticker.C {
		var changed bool
		pkg.RLockWrap(s.DB.Store, func() {
			changed = s.DB.Store.LastChange.After(last_write)
		})
		if !changed {
			continue
		}
		if err := s.DB.Store.WriteToFile(); err != nil {
			pkg.Log().Errorf("flush failed: %v", err)
			continue
		}
		last_write = time.Now()
	}
}

type WsRequest struct {
	Action RequestAction `json:"action"`
	ReqId  int           `json:"__bcdb_client_req_id__"` // used by bcdb clients
}

func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ws, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		pkg.Log().Errorf("upgrade failed: %v", err)
		return
	}

	ctx := NewConnCtx(ws)
	defer ws.Close()
	defer pkg.Log().Infof("connection closed from %s", ws.RemoteAddr())

	for {
		buf, err := ctx.Read()
		if err != nil {
			return
		}

		if !ctx.isAuthed {
			if ctx.attempts == maxConnAttempts {
				pkg.Log().Error("max connection attempts reached")
				return
			}
			ctx.attempts += 1
			if err := s.tryConnect(ctx, buf); err != nil {
				pkg.Log().Errorf("conn attempt error: %v", err)
				return
			}
			continue
		}

		var req WsRequest
		if err := json.Unmarshal(buf, &req); err != nil {
			pkg.Log().Errorf("parsing request: %v", err)
			continue
		}

		res := ActionHandler(s, req.Action, ctx, buf)
		res.ReqId = req.ReqId

		if err := ctx.WriteResponse(res); err != nil {
			pkg.Log().Errorf("writing response: %v", err)
			return
		}
	}
}

type ConnRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) tryConnect(ctx *ConnCtx, buf []byte) error {
	var r ConnRequest
	if err := json.Unmarshal(buf, &r); err != nil {
		ctx.WriteResponse(NewErrorResponse(http.StatusBadRequest, err.Error()))
		return err
	}

	ctx.User = s.validateUser(r.Username, r.Password)
	if ctx.User == nil {
		ctx.WriteResponse(NewErrorResponse(http.StatusUnauthorized, "Invalid auth"))
		return nil
	}

	ctx.SetAuthed()
	ctx.WriteResponse(NewResponse(http.StatusOK, "connected", nil))
	return nil
}
