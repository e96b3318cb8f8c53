// Tastesync - Personalization and Recommendation Sync Client
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tastesync

package validation

import (
	"strings"
	"testing"
)

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()

	if v1, v2 := GetValidator(), GetValidator(); v1 != v2 || v1 == nil {
		t.Error("GetValidator() should return one non-nil instance")
	}
}

type identityInput struct {
	DeviceToken string `json:"device_token" validate:"required_without=SessionID"`
	SessionID   string `json:"session_id" validate:"required_without=DeviceToken"`
}

type pageInput struct {
	Text  string `json:"message" validate:"notblank,max=20"`
	Page  int    `json:"page" validate:"min=1"`
	Limit int    `json:"limit" validate:"min=1,max=100"`
}

func TestValidateStructIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   identityInput
		wantErr bool
	}{
		{"device only", identityInput{DeviceToken: "web_abc"}, false},
		{"session only", identityInput{SessionID: "s1"}, false},
		{"both", identityInput{DeviceToken: "web_abc", SessionID: "s1"}, false},
		{"neither", identityInput{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateStruct() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !err.HasField("device_token") {
				t.Errorf("expected device_token in errors, got %v", err)
			}
		})
	}
}

func TestValidateStructMessages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input pageInput
		field string
		want  string
	}{
		{"blank message", pageInput{Text: "   ", Page: 1, Limit: 20}, "message", "message must not be blank"},
		{"long message", pageInput{Text: strings.Repeat("x", 21), Page: 1, Limit: 20}, "message", "at most 20 characters"},
		{"page zero", pageInput{Text: "pizza", Page: 0, Limit: 20}, "page", "page must be at least 1"},
		{"limit too big", pageInput{Text: "pizza", Page: 1, Limit: 101}, "limit", "limit must be at most 100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if !err.HasField(tt.field) {
				t.Errorf("HasField(%q) = false, errors: %v", tt.field, err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error() = %q, want substring %q", err.Error(), tt.want)
			}
		})
	}
}

func TestValidateStructValid(t *testing.T) {
	t.Parallel()

	if err := ValidateStruct(&pageInput{Text: "pizza di Kuta", Page: 3, Limit: 20}); err != nil {
		t.Errorf("ValidateStruct() = %v, want nil", err)
	}
}

func TestOpaqueID(t *testing.T) {
	t.Parallel()

	type tokenInput struct {
		Token string `json:"device_token" validate:"opaqueid"`
	}
	tests := []struct {
		token string
		ok    bool
	}{
		{"", true},
		{"web_4f9c2a1e77b04d5e", true},
		{"0b7c1d2e-aaaa-bbbb-cccc-123456789abc", true},
		{"web a", false},
		{"web_a&limit=1000", false},
		{"../etc", false},
		{strings.Repeat("a", MaxOpaqueIDLength), true},
		{strings.Repeat("a", MaxOpaqueIDLength+1), false},
	}
	for _, tt := range tests {
		err := ValidateStruct(&tokenInput{Token: tt.token})
		if (err == nil) != tt.ok {
			t.Errorf("ValidateStruct(%q) = %v, want ok %v", tt.token, err, tt.ok)
		}
		if err != nil && (len(err.Fields) != 1 || err.Fields[0].Rule != "opaqueid") {
			t.Errorf("ValidateStruct(%q) fields = %+v, want one opaqueid failure", tt.token, err.Fields)
		}
	}
}
