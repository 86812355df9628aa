package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Chat    ChatConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// ChatConfig controls the sink that mirrors important lines into the
// operator's log chat.
type ChatConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./remindbot.log"

// Service owns the sinks and swaps them on Apply. Loggers handed out by the
// service always write through the latest configuration.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File
	chat *chatSink
}

// New applies cfg and returns the service with its root logger. sender may
// be nil until the transport exists; see SetSender.
func New(cfg Config, sender Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{chat: newChatSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func setGlobals() {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = timeFormat
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetSender wires the chat sink to the transport.
func (s *Service) SetSender(sender Sender) { s.chat.setSender(sender) }

// SetChatTarget points the chat sink at chatID (and optionally a forum
// topic). A zero chatID mutes the sink.
func (s *Service) SetChatTarget(chatID int64, threadID int) { s.chat.setTarget(chatID, threadID) }

// ChatDropped reports lines the chat sink discarded because its queue was full.
func (s *Service) ChatDropped() uint64 { return s.chat.dropped.Load() }

// Apply rebuilds the sinks from cfg. Safe for concurrent use.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	var sinks []io.Writer
	if cfg.Console {
		sinks = append(sinks, consoleWriter())
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogFile
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			sinks = append(sinks, zerolog.SyncWriter(f))
		}
	}
	s.chat.configure(cfg.Chat)
	if cfg.Chat.Enabled {
		sinks = append(sinks, s.chat)
		if !s.chat.hasTarget() {
			fmt.Fprintln(os.Stderr, "logx: chat logging enabled but telegram.group_log is empty")
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, consoleWriter())
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)
}

// Close stops the chat worker and closes the log file.
func (s *Service) Close() error {
	s.chat.stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func consoleWriter() io.Writer {
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
}
