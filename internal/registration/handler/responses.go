package handler

import (
	"strings"

	"cdcam/internal/registration"
)

// emailListRequest is the legacy v1/v2 request body.
type emailListRequest struct {
	Emails []string `json:"emails"`
}

// usersRequest is the v3 request body.
type usersRequest struct {
	Users []registration.User `json:"users"`
}

// userV1 is the original response shape. It predates the dedicated
// already-exists code, so existing accounts report 200 here.
type userV1 struct {
	UID             string `json:"uid,omitempty"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	Registered      bool   `json:"registered"`
	IsAvailable     *bool  `json:"isAvailable,omitempty"`
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

// userV2 distinguishes existing accounts from new ones and exposes which
// data center holds the account.
type userV2 struct {
	UID             string `json:"uid,omitempty"`
	Email           string `json:"email"`
	IsAvailable     *bool  `json:"isAvailable,omitempty"`
	IsRegistered    bool   `json:"isRegistered"`
	IsActive        bool   `json:"isActive"`
	DataCenter      string `json:"dataCenter,omitempty"`
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
}

// userV3 adds a password setup link for freshly created accounts.
type userV3 struct {
	userV2
	PasswordSetupLink string `json:"passwordSetupLink,omitempty"`
}

func toV1(results []registration.Result) []userV1 {
	out := make([]userV1, len(results))
	for i, r := range results {
		code := r.Code
		if code == registration.CodeAccountExists {
			code = registration.CodeOK
		}
		out[i] = userV1{
			UID:             r.UID,
			Username:        r.Email,
			Email:           r.Email,
			Registered:      r.IsRegistered,
			ResponseCode:    code,
			ResponseMessage: r.Message,
		}
		switch r.Status {
		case registration.StatusCreated:
			out[i].IsAvailable = boolPtr(true)
		case registration.StatusExists:
			out[i].IsAvailable = boolPtr(false)
		}
	}
	return out
}

func toV2(results []registration.Result) []userV2 {
	out := make([]userV2, len(results))
	for i, r := range results {
		out[i] = projectV2(r)
	}
	return out
}

func toV3(results []registration.Result, users []registration.User, linkTemplate string) []userV3 {
	out := make([]userV3, len(results))
	for i, r := range results {
		out[i] = userV3{userV2: projectV2(r)}
		if r.Status == registration.StatusCreated {
			out[i].PasswordSetupLink = passwordSetupLink(linkTemplate, users[i].ClientID, r.UID)
		}
	}
	return out
}

func projectV2(r registration.Result) userV2 {
	u := userV2{
		UID:             r.UID,
		Email:           r.Email,
		IsRegistered:    r.IsRegistered,
		IsActive:        r.IsActive,
		DataCenter:      r.Tenant,
		ResponseCode:    r.Code,
		ResponseMessage: r.Message,
	}
	switch r.Status {
	case registration.StatusCreated:
		u.IsAvailable = boolPtr(true)
	case registration.StatusExists:
		u.IsAvailable = boolPtr(false)
	}
	// invalid and failed outcomes leave availability unknown
	return u
}

// passwordSetupLink fills the {clientId} and {uid} placeholders in the
// configured template.
func passwordSetupLink(template, clientID, uid string) string {
	return strings.NewReplacer("{clientId}", clientID, "{uid}", uid).Replace(template)
}

func boolPtr(b bool) *bool { return &b }
