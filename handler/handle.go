package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/ccfarm/seqbuf/buffer"
	"github.com/ccfarm/seqbuf/engine"
	"github.com/ccfarm/seqbuf/logger"
	"github.com/ccfarm/seqbuf/utils"
)

const (
	cmdSET     = "SET"
	cmdSETEX   = "SETEX"
	cmdGET     = "GET"
	cmdDEL     = "DEL"
	cmdKEYS    = "KEYS"
	cmdEQUAL   = "EQUAL"
	cmdCOMPARE = "COMPARE"
	cmdPING    = "PING"

	optEX = "EX"
	optPX = "PX"

	typeArray = '*'
	typeBulk  = '$'

	delimCR = '\r'
	delimLF = '\n'

	respOK             = "+OK\r\n"
	respPong           = "+PONG\r\n"
	respKeyNotExist    = "$-1\r\n"
	respErr            = "-ERR %s '%s'\r\n"
	respDelKey         = ":1\r\n"
	respDelKeyNotExist = ":0\r\n"

	unknownCommand = "unknown command"
	wrongArity     = "wrong number of arguments for"
	notInteger     = "value is not an integer"
	invalidExpire  = "invalid expire time in"
	syntaxErr      = "syntax error"
	unknownErr     = "unknown err"

	// a length prefix longer than this is not a number we accept
	maxNumberDigits = 18
)

var (
	errProtocol = errors.New("protocol error")

	// the only pattern KEYS understands
	allKeys = buffer.WrapReadOnly(utils.StringTobyteSlice("*"))
)

// redis协议 https://www.redis.com.cn/topics/protocol.html

// example

// C: *2\r\n
// C: $3\r\n
// C: GET\r\n
// C: $3\r\n
// C: key\r\n

// S: $5\r\n
// S: value\r\n

// parseCMD reads one command. The tokens are views into r and are valid
// until r's garbage is collected.
func parseCMD(r buffer.Buffer) ([]*buffer.ByteBuffer, error) {
	tokenNumber, err := parseNumber(r, typeArray)
	if err != nil {
		return nil, err
	}
	if tokenNumber <= 0 {
		return nil, errors.Wrapf(errProtocol, "array of %d tokens", tokenNumber)
	}

	tokens := make([]*buffer.ByteBuffer, 0, tokenNumber)
	for tokenNumber > 0 {
		tokenNumber -= 1

		tokenLen, err := parseNumber(r, typeBulk)
		if err != nil {
			return nil, err
		}

		token, err := r.Read(tokenLen)
		if err != nil {
			return nil, err
		}

		if err := expectCRLF(r); err != nil {
			return nil, err
		}

		tokens = append(tokens, token)
	}
	return tokens, nil
}

// parseNumber reads "<prefix><digits>\r\n".
func parseNumber(r buffer.Buffer, prefix byte) (int, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != prefix {
		return 0, errors.Wrapf(errProtocol, "expected '%c', got '%c'", prefix, b)
	}

	n, digits := 0, 0
	for {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}

		if b == delimCR {
			break
		}

		if b < '0' || b > '9' || digits == maxNumberDigits {
			return 0, errors.Wrapf(errProtocol, "bad length byte '%c'", b)
		}
		n = n*10 + int(b-'0')
		digits++
	}

	b, err = r.ReadByte()
	if err != nil {
		return 0, err
	}
	if b != delimLF || digits == 0 {
		return 0, errors.Wrap(errProtocol, "malformed length")
	}

	return n, nil
}

func expectCRLF(r buffer.Buffer) error {
	crlf, err := r.Read(2)
	if err != nil {
		return err
	}
	if cr, _ := crlf.GetAt(0); cr != delimCR {
		return errors.Wrap(errProtocol, "missing CRLF after bulk string")
	}
	if lf, _ := crlf.GetAt(1); lf != delimLF {
		return errors.Wrap(errProtocol, "missing CRLF after bulk string")
	}
	return nil
}

// Server answers RESP commands from a store.
type Server struct {
	db engine.Engine

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func NewServer(db engine.Engine) *Server {
	return &Server{
		db:    db,
		conns: make(map[net.Conn]struct{}),
	}
}

// Serve accepts connections until ctx is done or the listener fails, then
// closes every open connection and waits for their handlers.
func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			listen.Close()
		case <-done:
		}
	}()

	defer func() {
		close(done)
		s.closeConns()
		s.wg.Wait()
	}()

	for {
		conn, err := listen.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			logger.Errorf("accept failed, err:%v", err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.Handle(conn)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conns == nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
	s.conns = nil
}

// flushReader sends buffered replies before every read from the connection,
// so a client is never left waiting on a reply while the server waits on it.
type flushReader struct {
	conn net.Conn
	w    *bufio.Writer
}

func (f flushReader) Read(p []byte) (int, error) {
	if f.w.Buffered() > 0 {
		if err := f.w.Flush(); err != nil {
			return 0, err
		}
	}
	return f.conn.Read(p)
}

// Handle serves one connection until the peer hangs up or sends something
// that is not RESP.
func (s *Server) Handle(conn net.Conn) {
	writer := bufio.NewWriter(conn)
	reader := buffer.GetReader(flushReader{conn: conn, w: writer})

	defer reader.Release()

	var err error
	defer func() {
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			_, _ = writer.WriteString(fmt.Sprintf(respErr, unknownErr, err.Error()))
			_ = writer.Flush()
		}

		conn.Close() //处理完之后要关闭这个连接
	}()

	//针对当前的连接做数据的发送和接收
	for {
		var tokens []*buffer.ByteBuffer
		tokens, err = parseCMD(reader)

		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				logger.Warnf("parse cmd err. %+v", err)
			}
			return
		}
		logger.Debugf("%d tokens parsed, %d bytes pipelined", len(tokens), reader.Buffered())

		// replies stay in writer until reader has to wait for the next command
		err = s.dispatch(tokens, writer)
		if err != nil {
			logger.Errorf("write reply err. %v", err)
			return
		}

		reader.CollectGarbage()
	}
}

func (s *Server) dispatch(tokens []*buffer.ByteBuffer, w *bufio.Writer) error {
	cmd := strings.ToUpper(utils.ByteSliceToString(tokens[0].Bytes()))
	args := tokens[1:]

	switch cmd {
	case cmdSET:
		if len(args) != 2 && len(args) != 4 {
			return writeErr(w, wrongArity, cmd)
		}
		if len(args) == 2 {
			return s.handleSet(args[0], args[1], w)
		}
		// SET key value EX seconds | PX milliseconds
		opt := strings.ToUpper(utils.ByteSliceToString(args[2].Bytes()))
		if opt != optEX && opt != optPX {
			return writeErr(w, syntaxErr, opt)
		}
		n, err := strconv.Atoi(utils.ByteSliceToString(args[3].Bytes()))
		if err != nil {
			return writeErr(w, notInteger, string(args[3].Bytes()))
		}
		expire, ok := expireSeconds(opt, n, time.Now())
		if !ok {
			return writeErr(w, invalidExpire, cmd)
		}
		return s.handleSetEX(args[0], args[1], expire, w)
	case cmdSETEX:
		if len(args) != 3 {
			return writeErr(w, wrongArity, cmd)
		}
		n, err := strconv.Atoi(utils.ByteSliceToString(args[1].Bytes()))
		if err != nil {
			return writeErr(w, notInteger, string(args[1].Bytes()))
		}
		expire, ok := expireSeconds(optEX, n, time.Now())
		if !ok {
			return writeErr(w, invalidExpire, cmd)
		}
		return s.handleSetEX(args[0], args[2], expire, w)
	case cmdGET:
		if len(args) != 1 {
			return writeErr(w, wrongArity, cmd)
		}
		return s.handleGet(args[0], w)
	case cmdDEL:
		if len(args) != 1 {
			return writeErr(w, wrongArity, cmd)
		}
		return s.handleDel(args[0], w)
	case cmdKEYS:
		if len(args) > 1 || (len(args) == 1 && !args[0].Equal(allKeys)) {
			return writeErr(w, wrongArity, cmd)
		}
		return s.handleKeys(w)
	case cmdEQUAL:
		if len(args) != 2 {
			return writeErr(w, wrongArity, cmd)
		}
		return s.handleEqual(args[0], args[1], w)
	case cmdCOMPARE:
		if len(args) != 2 {
			return writeErr(w, wrongArity, cmd)
		}
		return s.handleCompare(args[0], args[1], w)
	case cmdPING:
		_, err := w.WriteString(respPong)
		return err
	default:
		return writeErr(w, unknownCommand, cmd)
	}
}

// expireSeconds turns an EX or PX argument into whole seconds, rounding
// milliseconds up. It rejects values that are not positive or whose deadline
// would not fit in an int64.
func expireSeconds(opt string, n int, now time.Time) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	if opt == optPX {
		if int64(n) > math.MaxInt64-now.UnixMilli() {
			return 0, false
		}
		secs := n / 1000
		if n%1000 != 0 {
			secs++
		}
		return secs, true
	}
	if int64(n) > math.MaxInt64-now.Unix() {
		return 0, false
	}
	return n, true
}

func (s *Server) handleSet(key, value *buffer.ByteBuffer, w *bufio.Writer) error {
	return s.handleSetEX(key, value, 0, w)
}

func (s *Server) handleSetEX(key, value *buffer.ByteBuffer, expire int, w *bufio.Writer) error {
	if err := s.db.Set(key, value, expire); err != nil {
		if errors.Is(err, engine.ErrTooLarge) {
			return writeErr(w, err.Error(), string(key.Bytes()))
		}
		return err
	}
	_, err := w.WriteString(respOK)
	return err
}

func (s *Server) handleGet(key *buffer.ByteBuffer, w *bufio.Writer) error {
	value, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, engine.ErrNil) {
			_, err = w.WriteString(respKeyNotExist)
		}
		return err
	}
	return writeBulk(w, value)
}

func (s *Server) handleDel(key *buffer.ByteBuffer, w *bufio.Writer) error {
	err := s.db.Delete(key)
	if err != nil {
		if errors.Is(err, engine.ErrNil) {
			_, err = w.WriteString(respDelKeyNotExist)
		}
		return err
	}

	_, err = w.WriteString(respDelKey)
	return err
}

func (s *Server) handleKeys(w *bufio.Writer) error {
	keys := s.db.Keys()
	if _, err := w.WriteString("*" + strconv.Itoa(len(keys)) + "\r\n"); err != nil {
		return err
	}
	for _, k := range keys {
		if err := writeBulk(w, k); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) handleEqual(k1, k2 *buffer.ByteBuffer, w *bufio.Writer) error {
	a, err := s.lookup(k1)
	if err != nil {
		return err
	}
	b, err := s.lookup(k2)
	if err != nil {
		return err
	}

	if a.Equal(b) {
		return writeInt(w, 1)
	}
	return writeInt(w, 0)
}

func (s *Server) handleCompare(k1, k2 *buffer.ByteBuffer, w *bufio.Writer) error {
	a, err := s.lookup(k1)
	if err != nil {
		return err
	}
	b, err := s.lookup(k2)
	if err != nil {
		return err
	}
	return writeInt(w, a.Compare(b))
}

// lookup is Get with missing keys read as empty values.
func (s *Server) lookup(key *buffer.ByteBuffer) (*buffer.ByteBuffer, error) {
	value, err := s.db.Get(key)
	if errors.Is(err, engine.ErrNil) {
		return buffer.WrapReadOnly(nil), nil
	}
	return value, err
}

func writeBulk(w *bufio.Writer, value *buffer.ByteBuffer) error {
	if _, err := w.WriteString("$" + strconv.Itoa(value.Remaining()) + "\r\n"); err != nil {
		return err
	}
	if _, err := w.ReadFrom(value.Duplicate()); err != nil {
		return err
	}
	_, err := w.WriteString("\r\n")
	return err
}

func writeInt(w *bufio.Writer, n int) error {
	_, err := w.WriteString(":" + strconv.Itoa(n) + "\r\n")
	return err
}

func writeErr(w *bufio.Writer, msg, arg string) error {
	_, err := w.WriteString(fmt.Sprintf(respErr, msg, arg))
	return err
}
