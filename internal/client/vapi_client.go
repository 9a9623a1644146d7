package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FailureKind classifies why a call could not be placed.
type FailureKind string

const (
	// FailureConfig: provider credentials missing; no network I/O attempted.
	FailureConfig FailureKind = "config"
	// FailureRejected: provider reachable but declined the call.
	FailureRejected FailureKind = "rejected"
	// FailureTransport: request could not be built or delivered.
	FailureTransport FailureKind = "transport"
)

// CallError is the typed failure of a single call attempt. Reason is stored
// verbatim as the reminder's error message.
type CallError struct {
	Kind   FailureKind
	Reason string
	cause  error
}

func (e *CallError) Error() string { return e.Reason }

func (e *CallError) Unwrap() error { return e.cause }

// VapiClient places outbound voice calls through the Vapi create-call API.
// It is stateless and safe for concurrent use. Each PlaceCall is a single
// best-effort attempt; retries are the caller's decision.
type VapiClient struct {
	apiKey        string
	phoneNumberID string
	baseURL       string
	client        *http.Client
}

func NewVapiClient(apiKey, phoneNumberID, baseURL string) *VapiClient {
	if baseURL == "" {
		baseURL = "https://api.vapi.ai"
	}
	return &VapiClient{
		apiKey:        apiKey,
		phoneNumberID: phoneNumberID,
		baseURL:       baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type createCallRequest struct {
	PhoneNumberID string        `json:"phoneNumberId"`
	Customer      callCustomer  `json:"customer"`
	Assistant     callAssistant `json:"assistant"`
}

type callCustomer struct {
	Number string `json:"number"`
}

type callAssistant struct {
	Name         string         `json:"name"`
	FirstMessage string         `json:"firstMessage"`
	Model        assistantModel `json:"model"`
	Voice        assistantVoice `json:"voice"`
}

type assistantModel struct {
	Provider string             `json:"provider"`
	Model    string             `json:"model"`
	Messages []assistantMessage `json:"messages"`
}

type assistantMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type assistantVoice struct {
	Provider string `json:"provider"`
	VoiceID  string `json:"voiceId"`
}

type createCallResponse struct {
	ID string `json:"id"`
}

// PlaceCall dials phoneNumber and has a transient assistant deliver the
// reminder. The greeting announces title and message; the assistant's prompt
// carries the message alone. It returns the provider's call id, or a
// *CallError describing the failure.
func (c *VapiClient) PlaceCall(ctx context.Context, phoneNumber, title, message string) (string, error) {
	if c.apiKey == "" || c.phoneNumberID == "" {
		return "", &CallError{
			Kind:   FailureConfig,
			Reason: "Vapi API key or phone number ID not configured",
		}
	}

	reqBody, err := json.Marshal(createCallRequest{
		PhoneNumberID: c.phoneNumberID,
		Customer: callCustomer{
			Number: phoneNumber,
		},
		Assistant: callAssistant{
			Name:         "Reminder Assistant",
			FirstMessage: fmt.Sprintf("Hello! This is your reminder: %s. %s", title, message),
			Model: assistantModel{
				Provider: "openai",
				Model:    "gpt-4o",
				Messages: []assistantMessage{
					{
						Role:    "system",
						Content: fmt.Sprintf("You are a friendly reminder assistant. Your only job is to deliver this reminder message: '%s'. After delivering the message, ask if they have any questions about the reminder, then politely end the call. Keep your responses brief and helpful.", message),
					},
				},
			},
			Voice: assistantVoice{
				Provider: "11labs",
				VoiceID:  "21m00Tcm4TlvDq8ikWAM",
			},
		},
	})
	if err != nil {
		return "", &CallError{
			Kind:   FailureTransport,
			Reason: fmt.Sprintf("Failed to trigger call: %v", err),
			cause:  err,
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(reqBody))
	if err != nil {
		return "", &CallError{
			Kind:   FailureTransport,
			Reason: fmt.Sprintf("Failed to trigger call: %v", err),
			cause:  err,
		}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &CallError{
			Kind:   FailureTransport,
			Reason: fmt.Sprintf("Failed to trigger call: %v", err),
			cause:  err,
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", &CallError{
			Kind:   FailureRejected,
			Reason: fmt.Sprintf("Vapi API error: %d - %s", resp.StatusCode, string(body)),
		}
	}

	var cr createCallResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return "", &CallError{
			Kind:   FailureRejected,
			Reason: fmt.Sprintf("Vapi API error: unreadable response body=%q", string(body)),
			cause:  err,
		}
	}
	if cr.ID == "" {
		return "", &CallError{
			Kind:   FailureRejected,
			Reason: fmt.Sprintf("Vapi API error: missing call id in response body=%q", string(body)),
		}
	}

	return cr.ID, nil
}
