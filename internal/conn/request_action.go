package conn

type RequestAction string

const (
	// row actions
	RequestActionFindOne    RequestAction = "findOne"
	RequestActionFindMany   RequestAction = "findMany"
	RequestActionCount      RequestAction = "count"
	RequestActionInsert     RequestAction = "insert"
	RequestActionInsertMany RequestAction = "insertMany"
	RequestActionUpdate     RequestAction = "update"
	RequestActionDelete     RequestAction = "delete"

	// server actions
	RequestActionStats      RequestAction = "stats"
	RequestActionCreateUser RequestAction = "createUser"
	RequestActionDeleteUser RequestAction = "deleteUser"
)

func (action RequestAction) IsReadOnly() bool {
	return action == RequestActionFindOne || action == RequestActionFindMany ||
		action == RequestActionCount || action == RequestActionStats
}

func (action RequestAction) IsServerAction() bool {
	switch action {
	default:
		return false
	case RequestActionStats, RequestActionCreateUser, RequestActionDeleteUser:
		return true
	}
}
