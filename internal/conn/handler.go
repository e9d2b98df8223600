package conn

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/JAssertz/better-convex-sub001/internal/apperr"
	"github.com/JAssertz/better-convex-sub001/internal/engine"
	"github.com/JAssertz/better-convex-sub001/internal/mutation"
	"github.com/JAssertz/better-convex-sub001/internal/query"
	"github.com/JAssertz/better-convex-sub001/internal/schema"
)

type Response struct {
	Data    any    `json:"data"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	// don't manually set this. it comes from the client
	ReqId int `json:"__bcdb_client_req_id__"`
}

func NewErrorResponse(status int, err string) Response {
	return Response{Message: err, Status: status}
}

func NewResponse(status int, message string, data any) Response {
	return Response{Data: data, Message: message, Status: status}
}

func errResponse(err error) Response {
	return NewErrorResponse(apperr.Status(err), err.Error())
}

func ActionHandler(s *Server, action RequestAction, ctx *ConnCtx, raw []byte) Response {
	if action.IsServerAction() && action != RequestActionStats {
		if !ctx.User.IsRoot {
			return NewErrorResponse(http.StatusForbidden, "insufficient permissions")
		}
	}

	handle := s.DB.With(ctx.User.Actor())

	switch action {
	case RequestActionFindOne:
		return FindOneReqHandler(handle, raw)
	case RequestActionFindMany:
		return FindManyReqHandler(handle, raw)
	case RequestActionCount:
		return CountReqHandler(handle, raw)
	case RequestActionInsert, RequestActionInsertMany:
		return InsertReqHandler(handle, raw)
	case RequestActionUpdate:
		return UpdateReqHandler(handle, raw)
	case RequestActionDelete:
		return DeleteReqHandler(handle, raw)
	case RequestActionStats:
		return StatsReqHandler(handle)
	case RequestActionCreateUser:
		return CreateUserReqHandler(s, raw)
	case RequestActionDeleteUser:
		return DeleteUserReqHandler(s, raw)
	default:
		return NewErrorResponse(http.StatusBadRequest, fmt.Sprintf("unknown action: %s", action))
	}
}

type FindRequest struct {
	Table   string                  `json:"table"`
	Where   WireFilter              `json:"where"`
	Take    int                     `json:"take"`
	Cursor  int                     `json:"cursor"`
	Include map[string]*WireInclude `json:"include"`
}

func (req *FindRequest) args() (query.FindArgs, error) {
	where, err := req.Where.Build()
	if err != nil {
		return query.FindArgs{}, err
	}
	include, err := buildInclude(req.Include)
	if err != nil {
		return query.FindArgs{}, err
	}
	return query.FindArgs{Where: where, Take: req.Take, Cursor: req.Cursor, Include: include}, nil
}

func FindOneReqHandler(handle *engine.Handle, raw []byte) Response {
	var req FindRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	where, err := req.Where.Build()
	if err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	row, err := handle.FindOne(req.Table, where)
	if err != nil {
		return errResponse(err)
	}
	if row == nil {
		return NewErrorResponse(http.StatusNotFound,
			fmt.Sprintf("no matching row in table %s", req.Table))
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Found row in table %s", req.Table), row)
}

func FindManyReqHandler(handle *engine.Handle, raw []byte) Response {
	var req FindRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	args, err := req.args()
	if err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	rows, err := handle.FindMany(req.Table, args)
	if err != nil {
		return errResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Found %d rows in table %s", len(rows), req.Table), rows)
}

func CountReqHandler(handle *engine.Handle, raw []byte) Response {
	var req FindRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	where, err := req.Where.Build()
	if err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	count, err := handle.Count(req.Table, where)
	if err != nil {
		return errResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Counted %d rows in table %s", count, req.Table), count)
}

type ConflictClause struct {
	Target string         `json:"target"`
	Update map[string]any `json:"update"`
}

type InsertRequest struct {
	Table string `json:"table"`
	// single row or batch; either field may be used
	Data      map[string]any    `json:"data"`
	Rows      []map[string]any  `json:"rows"`
	Returning map[string]string `json:"returning"`

	OnConflictDoNothing *ConflictClause `json:"onConflictDoNothing"`
	OnConflictDoUpdate  *ConflictClause `json:"onConflictDoUpdate"`
}

func InsertReqHandler(handle *engine.Handle, raw []byte) Response {
	var req InsertRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	values := []schema.Row{}
	if req.Data != nil {
		values = append(values, schema.Row(req.Data))
	}
	for _, row := range req.Rows {
		values = append(values, schema.Row(row))
	}

	op := handle.Insert(req.Table).Values(values...)
	if req.OnConflictDoNothing != nil {
		op = op.OnConflictDoNothing(req.OnConflictDoNothing.Target)
	} else if req.OnConflictDoUpdate != nil {
		op = op.OnConflictDoUpdate(req.OnConflictDoUpdate.Target, schema.Row(req.OnConflictDoUpdate.Update))
	}

	rows, err := op.Returning(projections(req.Returning)...)
	if err != nil {
		return errResponse(err)
	}
	return NewResponse(http.StatusCreated,
		fmt.Sprintf("Created %d rows in table %s", len(rows), req.Table), rows)
}

type UpdateRequest struct {
	Table     string            `json:"table"`
	Where     WireFilter        `json:"where"`
	Set       map[string]any    `json:"set"`
	Returning map[string]string `json:"returning"`
}

func UpdateReqHandler(handle *engine.Handle, raw []byte) Response {
	var req UpdateRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	where, err := req.Where.Build()
	if err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	rows, err := handle.Update(req.Table).
		Where(where).
		Set(schema.Row(req.Set)).
		Returning(projections(req.Returning)...)
	if err != nil {
		return errResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Updated %d rows in table %s", len(rows), req.Table), rows)
}

type DeleteRequest struct {
	Table     string            `json:"table"`
	Where     WireFilter        `json:"where"`
	Returning map[string]string `json:"returning"`
}

func DeleteReqHandler(handle *engine.Handle, raw []byte) Response {
	var req DeleteRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	where, err := req.Where.Build()
	if err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	rows, err := handle.Delete(req.Table).
		Where(where).
		Returning(projections(req.Returning)...)
	if err != nil {
		return errResponse(err)
	}
	return NewResponse(http.StatusOK,
		fmt.Sprintf("Deleted %d rows in table %s", len(rows), req.Table), rows)
}

func StatsReqHandler(handle *engine.Handle) Response {
	return NewResponse(http.StatusOK, "Stats", handle.Stats())
}

type CreateUserRequest struct {
	Name     string   `json:"name"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
}

func CreateUserReqHandler(s *Server, raw []byte) Response {
	var req CreateUserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}
	if req.Name == "" {
		return NewErrorResponse(http.StatusBadRequest, "user name is required")
	}

	user, err := s.CreateUser(req.Name, req.Password, req.Roles...)
	if err != nil {
		return errResponse(err)
	}
	return NewResponse(http.StatusCreated,
		fmt.Sprintf("Created new user %s", user.Name), user.Id)
}

type DeleteUserRequest struct {
	Name string `json:"name"`
}

func DeleteUserReqHandler(s *Server, raw []byte) Response {
	var req DeleteUserRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return NewErrorResponse(http.StatusBadRequest, err.Error())
	}

	if !s.DeleteUser(req.Name) {
		return NewErrorResponse(http.StatusNotFound,
			fmt.Sprintf("no user %s", req.Name))
	}
	return NewResponse(http.StatusOK, fmt.Sprintf("Deleted user %s", req.Name), nil)
}

func projections(returning map[string]string) []mutation.Projection {
	if len(returning) == 0 {
		return nil
	}
	return []mutation.Projection{mutation.Projection(returning)}
}
