/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Room errors are reported only to the connection that caused them,
// never broadcast, and never terminate a session.
var (
	errNotHost             = errors.New("Only the host can do that")
	errAlreadyStarted      = errors.New("The game has already started")
	errInsufficientPlayers = errors.New("At least two players are needed to start")
	errRoomNotFound        = errors.New("Room not found")
	errGameInProgress      = errors.New("Cannot join while a game is in progress")
	errRoomFull            = errors.New("Room is full")
	errNameTaken           = errors.New("That name is already taken")
	errPlayerNotFound      = errors.New("Player not found in this room")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
