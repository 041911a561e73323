// SOP App - Offline-First Operations Sync Agent
// Copyright 2026 Conquer Design Group
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/conquerdesigngroup/sop-app

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return the same non-nil instance")
	}
}

type releaseRequest struct {
	Version string `json:"version" validate:"required,semver"`
	Limit   int    `json:"limit" validate:"min=1,max=100"`
}

type changeRequest struct {
	Collection string `json:"collection" validate:"required,collection"`
	ChangeType string `json:"change_type" validate:"required,changetype"`
}

func TestValidateStruct_CustomTags(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		wantErr bool
		field   string
		tag     string
	}{
		{"semver plain", &releaseRequest{Version: "1.4.2", Limit: 10}, false, "", ""},
		{"semver with v", &releaseRequest{Version: "v2.0.0-rc.1", Limit: 10}, false, "", ""},
		{"semver garbage", &releaseRequest{Version: "latest", Limit: 10}, true, "version", "semver"},
		{"limit too high", &releaseRequest{Version: "1.0.0", Limit: 1000}, true, "limit", "max"},
		{"valid change", &changeRequest{Collection: "tasks", ChangeType: "update"}, false, "", ""},
		{"bad change type", &changeRequest{Collection: "tasks", ChangeType: "upsert"}, true, "change_type", "changetype"},
		{"bad collection", &changeRequest{Collection: "Tasks!", ChangeType: "create"}, true, "collection", "collection"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if !tt.wantErr {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.field || errs[0].Tag() != tt.tag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.field, tt.tag)
			}
		})
	}
}

func TestToAPIError_Single(t *testing.T) {
	verr := ValidateStruct(&releaseRequest{Version: "", Limit: 5})
	if verr == nil {
		t.Fatal("expected error")
	}
	apiErr := verr.ToAPIError()
	if apiErr.Code != CodeValidation {
		t.Errorf("Code = %s", apiErr.Code)
	}
	if apiErr.Message != "version is required" {
		t.Errorf("Message = %q", apiErr.Message)
	}
	if apiErr.Details["field"] != "version" {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestToAPIError_Multiple(t *testing.T) {
	verr := ValidateStruct(&releaseRequest{Version: "nope", Limit: 0})
	if verr == nil {
		t.Fatal("expected error")
	}
	apiErr := verr.ToAPIError()
	if !strings.Contains(apiErr.Message, "version:") || !strings.Contains(apiErr.Message, "limit:") {
		t.Errorf("Message = %q", apiErr.Message)
	}
	fields, ok := apiErr.Details["fields"].([]map[string]any)
	if !ok || len(fields) != 2 {
		t.Errorf("Details = %v", apiErr.Details)
	}
}

func TestTranslateMessages(t *testing.T) {
	type minString struct {
		Name string `json:"name" validate:"min=3"`
	}
	verr := ValidateStruct(&minString{Name: "ab"})
	if verr == nil || verr.Error() != "name must be at least 3 characters" {
		t.Errorf("message = %v", verr)
	}
}
