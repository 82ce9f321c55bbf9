// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package validation

import (
	"errors"
	"strings"
	"testing"
)

type feedbackRequest struct {
	UserID     int  `json:"user_id" validate:"required,gt=0"`
	ResourceID int  `json:"resource_id" validate:"required,gt=0"`
	Rating     *int `json:"rating" validate:"omitempty,min=1,max=5"`
}

func TestValidateStructPasses(t *testing.T) {
	rating := 4
	req := feedbackRequest{UserID: 1, ResourceID: 10, Rating: &rating}
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("valid request rejected: %v", err)
	}
}

func TestValidateStructNilRatingAllowed(t *testing.T) {
	req := feedbackRequest{UserID: 1, ResourceID: 10}
	if err := ValidateStruct(&req); err != nil {
		t.Errorf("omitted rating should be allowed: %v", err)
	}
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	req := feedbackRequest{ResourceID: 10}
	err := ValidateStruct(&req)
	if err == nil {
		t.Fatal("missing user_id should fail")
	}

	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	if len(re.Fields) != 1 || re.Fields[0].Field != "user_id" {
		t.Errorf("field errors should use json names: %+v", re.Fields)
	}
	if !strings.Contains(re.Error(), "user_id") {
		t.Errorf("combined message should name the field: %q", re.Error())
	}
}

func TestValidateStructRatingBounds(t *testing.T) {
	rating := 9
	req := feedbackRequest{UserID: 1, ResourceID: 10, Rating: &rating}
	err := ValidateStruct(&req)
	if err == nil {
		t.Fatal("out-of-range rating should fail")
	}
	var re *RequestError
	if !errors.As(err, &re) {
		t.Fatalf("expected *RequestError, got %T", err)
	}
	if re.Fields[0].Rule != "max" {
		t.Errorf("expected max rule failure, got %+v", re.Fields[0])
	}
}

func TestValidateStructNonStruct(t *testing.T) {
	err := ValidateStruct(42)
	if err == nil {
		t.Fatal("non-struct input should error")
	}
	var re *RequestError
	if errors.As(err, &re) {
		t.Error("non-struct input should not produce field errors")
	}
}
