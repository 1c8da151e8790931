// Command-line client for Backend-chatter.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Dhruv-158/Backend-chatter/clients/go/chatter"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	client := chatter.NewClient(os.Getenv("CHATTER_URL"))
	client.AccessToken = os.Getenv("CHATTER_TOKEN")

	var err error
	switch os.Args[1] {
	case "register":
		err = cmdRegister(client, os.Args[2:])
	case "login":
		err = cmdLogin(client, os.Args[2:])
	case "send":
		err = cmdSend(client, os.Args[2:])
	case "friends":
		err = cmdFriends(client)
	case "history":
		err = cmdHistory(client, os.Args[2:])
	case "listen":
		err = cmdListen(client)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: chatter <command> [args]

commands:
  register <username> <email> <password>
  login <email> <password>
  send <friend-id> <text>
  friends
  history <friend-id>
  listen

environment:
  CHATTER_URL    server base URL (default http://localhost:8080)
  CHATTER_TOKEN  access token for authenticated commands`)
}

func cmdRegister(c *chatter.Client, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: register <username> <email> <password>")
	}
	resp, err := c.Register(args[0], args[1], args[2])
	if err != nil {
		return err
	}
	fmt.Println("id:", resp.ID)
	fmt.Println("token:", resp.AccessToken)
	return nil
}

func cmdLogin(c *chatter.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: login <email> <password>")
	}
	resp, err := c.Login(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println("token:", resp.AccessToken)
	return nil
}

func cmdSend(c *chatter.Client, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: send <friend-id> <text>")
	}
	msg, err := c.SendText(args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Println("sent:", msg.ID)
	return nil
}

func cmdFriends(c *chatter.Client) error {
	friends, err := c.Friends()
	if err != nil {
		return err
	}
	for _, f := range friends {
		status := "offline"
		if f.Online {
			status = "online"
		}
		fmt.Printf("%s  %s  (%s)\n", f.ID, f.Username, status)
	}
	return nil
}

func cmdHistory(c *chatter.Client, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: history <friend-id>")
	}
	msgs, err := c.History(args[0], 50)
	if err != nil {
		return err
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Printf("[%s] %s: %s\n", m.CreatedAt, m.SenderID, m.Body)
	}
	return nil
}

func cmdListen(c *chatter.Client) error {
	conn, err := c.Connect(context.Background())
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprintln(os.Stderr, "connected, waiting for events")
	for {
		frame, err := conn.Next()
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", frame.Event, frame.Data)
	}
}
