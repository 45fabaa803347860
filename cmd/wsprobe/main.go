package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"time"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/serverutils"

	"github.com/fasthttp/websocket"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

func main() {
	addr := flag.String("addr", "localhost:5000", "server host:port")
	user := flag.String("user", "student-1", "user id to connect as")
	to := flag.String("to", "", "send a message to this user after joining")
	text := flag.String("text", "hello from wsprobe", "message content")
	typing := flag.Bool("typing", false, "send a typing signal before the message")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		color.Red("JWT_SECRET is not set")
		os.Exit(1)
	}

	token, err := serverutils.IssueUserToken(secret, *user, time.Hour)
	if err != nil {
		color.Red("Failed to sign token: %v", err)
		os.Exit(1)
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/api/ws", RawQuery: "token=" + url.QueryEscape(token)}
	color.Cyan("🔌 Connecting to %s as %s", u.Host, *user)

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			color.Red("Handshake failed: %s", resp.Status)
		} else {
			color.Red("Dial failed: %v", err)
		}
		os.Exit(1)
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var frame dto.WsInboundFrame
			if err := conn.ReadJSON(&frame); err != nil {
				color.Red("Connection closed: %v", err)
				return
			}
			printFrame(frame)
		}
	}()

	mustSend(conn, dto.WsEventJoin, dto.JoinPayload{UserId: *user})
	color.Green("Joined as %s", *user)

	if *to != "" {
		if *typing {
			mustSend(conn, dto.WsEventTyping, dto.TypingPayload{From: *user, To: *to, IsTyping: true})
			time.Sleep(500 * time.Millisecond)
			mustSend(conn, dto.WsEventTyping, dto.TypingPayload{From: *user, To: *to, IsTyping: false})
		}
		mustSend(conn, dto.WsEventSendMessage, dto.SendMessagePayload{From: *user, To: *to, Content: *text})
		color.Yellow("→ sent to %s: %q", *to, *text)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-done:
	case <-interrupt:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
}

func mustSend(conn *websocket.Conn, eventType string, data interface{}) {
	if err := conn.WriteJSON(dto.WsEnvelope{Type: eventType, Data: data}); err != nil {
		color.Red("Failed to send %s: %v", eventType, err)
		os.Exit(1)
	}
}

func printFrame(frame dto.WsInboundFrame) {
	stamp := time.Now().Format("15:04:05")
	switch frame.Type {
	case dto.WsEventNewMessage:
		var msg dto.NewMessagePayload
		if err := json.Unmarshal(frame.Data, &msg); err == nil {
			name := msg.SenderName
			if name == "" {
				name = msg.From
			}
			color.Green("[%s] 💬 %s: %s", stamp, name, msg.Content)
			return
		}
	case dto.WsEventMessageDelivered:
		color.Cyan("[%s] ✔ delivered %s", stamp, string(frame.Data))
		return
	case dto.WsEventMessageError:
		color.Red("[%s] ✖ %s", stamp, string(frame.Data))
		return
	case dto.WsEventUserOnline, dto.WsEventUserOffline:
		color.Yellow("[%s] %s %s", stamp, frame.Type, string(frame.Data))
		return
	case dto.WsEventUserTyping:
		color.Magenta("[%s] ✎ %s", stamp, string(frame.Data))
		return
	}
	fmt.Printf("[%s] %s %s\n", stamp, frame.Type, string(frame.Data))
}
