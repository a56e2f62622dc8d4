package feishu_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/becomeliminal/aide/feishu"
)

type capturedMessage struct {
	MsgType string `json:"msg_type"`
	Content struct {
		Text string `json:"text"`
	} `json:"content"`
}

func TestSendFormatsPayload(t *testing.T) {
	var got capturedMessage
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.Write([]byte(`{"code": 0}`))
	}))
	defer srv.Close()

	c := feishu.New(srv.URL, 0)
	err := c.Send(context.Background(), "Personal Assistant Response", "All good.", "2026-08-25 09:00:00")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if got.MsgType != "text" {
		t.Errorf("msg_type = %q", got.MsgType)
	}
	want := "**Personal Assistant Response**\n\n**Timestamp:** 2026-08-25 09:00:00\n\n**Content:**\nAll good."
	if got.Content.Text != want {
		t.Errorf("content.text = %q, want %q", got.Content.Text, want)
	}
}

func TestSendAPIErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 19001, "msg": "invalid webhook token"}`))
	}))
	defer srv.Close()

	c := feishu.New(srv.URL, 0)
	err := c.Send(context.Background(), "t", "x", "ts")
	if err == nil {
		t.Fatal("expected error for non-zero code")
	}
	if !strings.Contains(err.Error(), "invalid webhook token") {
		t.Errorf("error = %v", err)
	}
}

func TestSendHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := feishu.New(srv.URL, 0)
	if err := c.Send(context.Background(), "t", "x", "ts"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

func TestSendErrorApology(t *testing.T) {
	var got capturedMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &got)
		w.Write([]byte(`{"code": 0}`))
	}))
	defer srv.Close()

	c := feishu.New(srv.URL, 0)
	runErr := errors.New("llm provider unavailable")
	if err := c.SendError(context.Background(), "what's the weather", runErr, "2026-08-25 09:00:00"); err != nil {
		t.Fatalf("SendError: %v", err)
	}

	text := got.Content.Text
	if !strings.HasPrefix(text, "**Error**") {
		t.Errorf("title missing from %q", text)
	}
	for _, want := range []string{
		"An error occurred while processing your question:",
		"llm provider unavailable",
		"Question: what's the weather",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("apology missing %q:\n%s", want, text)
		}
	}
}

func TestSendWithoutURL(t *testing.T) {
	c := feishu.New("", 0)
	if err := c.Send(context.Background(), "t", "x", "ts"); err == nil {
		t.Fatal("expected error when webhook URL is missing")
	}
}
