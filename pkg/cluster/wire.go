package cluster

import "encoding/json"

// wireRequest is the request envelope of every cluster RPC. Fields are
// populated per operation; Forward marks a write that the receiving replica
// must propagate to the remaining replicas of the key.
type wireRequest struct {
	Key     string          `json:"key,omitempty"`
	Keys    []string        `json:"keys,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Member  int             `json:"member,omitempty"`
	Token   string          `json:"token,omitempty"`
	Forward bool            `json:"forward,omitempty"`
}

// wireResponse is the response envelope of every cluster RPC.
type wireResponse struct {
	Value   json.RawMessage            `json:"value,omitempty"`
	Entries map[string]json.RawMessage `json:"entries,omitempty"`
	Values  []json.RawMessage          `json:"values,omitempty"`
	Members []int                      `json:"members,omitempty"`
	Keys    []string                   `json:"keys,omitempty"`
	Found   bool                       `json:"found,omitempty"`
	Size    int                        `json:"size,omitempty"`
	OK      bool                       `json:"ok,omitempty"`
	Error   string                     `json:"error,omitempty"`
}
