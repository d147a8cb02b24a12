package protocol

type Command string

const (
	QUIT     Command = "QUIT"
	PING     Command = "PING"
	ACTIVATE Command = "ACTIVATE"
	DELAY    Command = "DELAY"
	GET      Command = "GET"
)

type ResponseType string

const (
	RespPong   ResponseType = "PONG"
	RespOk     ResponseType = "OK"
	RespGet    ResponseType = "GET"
	RespErr    ResponseType = "ERR"
	RespUpdate ResponseType = "UPDATE"
)
