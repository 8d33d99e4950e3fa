package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/rag-chat/backend/internal/config"
	model "github.com/zhouzirui/rag-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rag-chat/backend/internal/service/answer"
	"github.com/zhouzirui/rag-chat/backend/internal/service/chat"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	baseURL := flag.String("url", cfg.RAG.BaseURL, "问答服务地址")
	timeout := flag.Duration("timeout", cfg.RAG.Timeout, "单次提问超时时间，0 表示不限制")
	flag.Parse()

	client := answer.NewClient(config.RAGConfig{BaseURL: *baseURL, Timeout: *timeout})
	conv := chat.NewConversation("cli", chat.NewStore(), client, nil)

	fmt.Printf("connected to %s, type /help for commands\n", *baseURL)
	if err := run(context.Background(), os.Stdin, os.Stdout, conv); err != nil {
		log.Fatalf("read input: %v", err)
	}
}

const helpText = `commands:
  /new             start a new conversation
  /list            list conversations
  /select <id>     switch conversation (id prefix is enough)
  /attach <path>   attach a file's metadata to the next message
  /quit            exit
anything else is sent as a question`

// run reads commands and questions from in until EOF or /quit.
func run(ctx context.Context, in io.Reader, out io.Writer, conv *chat.Conversation) error {
	scanner := bufio.NewScanner(in)
	var pending *model.Attachment

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			if pending == nil {
				continue
			}
			sendAndPrint(ctx, out, conv, "", pending)
			pending = nil
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			fmt.Fprintln(out, helpText)
		case line == "/new":
			conv.New(ctx)
			fmt.Fprintln(out, "new conversation; it starts with your next message")
		case line == "/list":
			printSessions(out, conv.Store())
		case strings.HasPrefix(line, "/select"):
			id := resolveSessionID(conv.Store(), strings.TrimSpace(strings.TrimPrefix(line, "/select")))
			if err := conv.Select(ctx, id); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			session, _ := conv.Store().Active()
			printTranscript(out, session)
		case strings.HasPrefix(line, "/attach"):
			att, err := describeFile(strings.TrimSpace(strings.TrimPrefix(line, "/attach")))
			if err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
				continue
			}
			pending = att
			fmt.Fprintf(out, "attached %s (%d bytes); press enter to send it alone or type a message\n", att.Name, att.Size)
		default:
			sendAndPrint(ctx, out, conv, line, pending)
			pending = nil
		}
	}
}

func sendAndPrint(ctx context.Context, out io.Writer, conv *chat.Conversation, text string, att *model.Attachment) {
	start := time.Now()
	turn, err := conv.Send(ctx, text, att)
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "bot (%s): %s\n", time.Since(start).Round(time.Millisecond), turn.Bot.Content)
}

func printSessions(out io.Writer, store *chat.Store) {
	sessions := store.Sessions()
	if len(sessions) == 0 {
		fmt.Fprintln(out, "no conversations yet")
		return
	}
	active := store.ActiveID()
	for _, s := range sessions {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %-33s  %d messages  %s\n", marker, shortID(s.ID), s.Title, len(s.Messages), s.UpdatedAt.Local().Format("15:04"))
	}
}

func printTranscript(out io.Writer, session model.Session) {
	fmt.Fprintf(out, "-- %s --\n", session.Title)
	for _, msg := range session.Messages {
		fmt.Fprintf(out, "%s: %s\n", msg.Role, msg.Content)
	}
}

// resolveSessionID expands a unique id prefix to the full id.
func resolveSessionID(store *chat.Store, prefix string) string {
	if prefix == "" {
		return prefix
	}
	match := ""
	for _, s := range store.Sessions() {
		if strings.HasPrefix(s.ID, prefix) {
			if match != "" {
				return prefix
			}
			match = s.ID
		}
	}
	if match == "" {
		return prefix
	}
	return match
}

func describeFile(path string) (*model.Attachment, error) {
	if path == "" {
		return nil, fmt.Errorf("usage: /attach <path>")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	mediaType := mime.TypeByExtension(filepath.Ext(path))
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	return &model.Attachment{Name: info.Name(), Size: info.Size(), MediaType: mediaType}, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
