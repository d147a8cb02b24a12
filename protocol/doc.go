package protocol

// This package implements parsing and serialising of the line protocol
// that Argus uses to talk to its clients.
//
// This protocol aims to be
//
// - easy to implement
// - efficient to parse
// - minimize memory usage
// - be human readable
//
// - `Command` - A client instruction to Argus.
// - `Request` - When a client sends a command to an Argus server.
// - `Response` - When a server sends a command response to a client.
// - Reading updates - A notification that a sensor channel produced a
//              new reading. These are pushed from the server to every
//              connected client.
//
// === Client Commands
//
// - `QUIT`     - indicates that the client wishes to quit and that the
//                server can close the connection
// - `PING`     - PING! Server will respond with pong
// - `ACTIVATE` - enable or disable a logical sensor channel
// - `DELAY`    - set the sampling interval of a channel in nanoseconds
// - `GET`      - fetch the latest reading of a channel
//
// === General Syntax
//
// - lines are `\r\n` delimited
// - Client commands are indicated using their human-readable name
//   (e.g. 'QUIT')
// - Command names are case sensitive and should be uppercase
// - sensor handles and delays are rendered as decimal integers
//
// As the server pushes readings whenever the hardware produces them,
// pushed updates can interleave with command replies. Client
// request/response exchanges are therefore prefixed with a request ID,
// which the server treats as a 32bit binary blob and echoes back.
//
// For example
//   ```
//     <reqID>PING\r\n
//     <reqID>PONG\r\n
//   ```
//
// === Error responses
//
//   ```
//     <reqID>ACTIVATE 42 1\r\n
//     <reqID>ERR <errMessage>\r\n
//   ```
//
// Where `<errMessage>` is a human readable string
//
// === ACTIVATE
//
//  ```
//    > <reqID>ACTIVATE <handle> <0|1>\r\n
//    < <reqID>OK\r\n
//  ```
//
// === DELAY
//
//  ```
//    > <reqID>DELAY <handle> <nanoseconds>\r\n
//    < <reqID>OK\r\n
//  ```
//
// === GET
//
//  ```
//    > <reqID>GET <handle>\r\n
//    < <reqID>GET\r\n
//    < <reading JSON>\r\n
//  ```
//
// === Reading updates
//
// Updates are not initiated by the client, so they carry no request ID.
// They are prefixed with `*` instead.
//
//   ```
//   *<handle>\r\n
//   <reading JSON>\r\n
//   ```
