package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"groupwarden/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleScan(t *testing.T) {
	engine := &fakePolicyEngine{
		result: policy.ScanResult{
			Action:   policy.ActionReject,
			Reason:   "Bio contains blocked keyword: crasher",
			RuleName: "No crashers",
			RuleID:   "rule_1",
		},
	}
	h := newPolicyTestHandler(engine)

	body := `{"user":{"id":"usr_1","displayName":"EvilUser","bio":"crasher"},"allowMissingTrustData":true}`
	req := httptest.NewRequest("POST", "/api/groups/grp_1/scan", strings.NewReader(body))
	req.SetPathValue("groupID", "grp_1")

	rec := httptest.NewRecorder()
	h.HandleScan(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"action":"REJECT","reason":"Bio contains blocked keyword: crasher","ruleName":"No crashers","ruleId":"rule_1"}`, rec.Body.String())
	assert.Equal(t, "grp_1", engine.gotGroupID)
	assert.Equal(t, "usr_1", engine.gotUser.ID)
	assert.True(t, engine.gotAllowMissing)
}

func TestHandleScan_BadRequest(t *testing.T) {
	h := newPolicyTestHandler(&fakePolicyEngine{})

	// Malformed body
	req := httptest.NewRequest("POST", "/api/groups/grp_1/scan", strings.NewReader("{"))
	req.SetPathValue("groupID", "grp_1")
	rec := httptest.NewRecorder()
	h.HandleScan(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Missing user id
	req = httptest.NewRequest("POST", "/api/groups/grp_1/scan", strings.NewReader(`{"user":{}}`))
	req.SetPathValue("groupID", "grp_1")
	rec = httptest.NewRecorder()
	h.HandleScan(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWhitelistAdd(t *testing.T) {
	engine := &fakePolicyEngine{added: true}
	h := newPolicyTestHandler(engine)

	req := httptest.NewRequest("POST", "/api/groups/grp_1/rules/rule_1/whitelist",
		strings.NewReader(`{"userId":"usr_1"}`))
	req.SetPathValue("groupID", "grp_1")
	req.SetPathValue("ruleID", "rule_1")

	rec := httptest.NewRecorder()
	h.HandleWhitelistAdd(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"added":true}`, rec.Body.String())
	assert.Equal(t, "grp_1", engine.gotGroupID)
	assert.Equal(t, "rule_1", engine.gotRuleID)
	assert.Equal(t, "usr_1", engine.gotUserID)
	assert.Empty(t, engine.gotUserGroupID)
}

func TestHandleWhitelistAdd_RuleNotFound(t *testing.T) {
	h := newPolicyTestHandler(&fakePolicyEngine{err: policy.ErrRuleNotFound})

	req := httptest.NewRequest("POST", "/api/groups/grp_1/rules/rule_missing/whitelist",
		strings.NewReader(`{"userGroupId":"grp_bad"}`))
	req.SetPathValue("groupID", "grp_1")
	req.SetPathValue("ruleID", "rule_missing")

	rec := httptest.NewRecorder()
	h.HandleWhitelistAdd(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleWhitelistAdd_BadRequest(t *testing.T) {
	h := newPolicyTestHandler(&fakePolicyEngine{})

	// Neither userId nor userGroupId
	req := httptest.NewRequest("POST", "/api/groups/grp_1/rules/rule_1/whitelist",
		strings.NewReader(`{}`))
	req.SetPathValue("groupID", "grp_1")
	req.SetPathValue("ruleID", "rule_1")
	rec := httptest.NewRecorder()
	h.HandleWhitelistAdd(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleWhitelistAdd_StoreError(t *testing.T) {
	h := newPolicyTestHandler(&fakePolicyEngine{err: errors.New("db closed")})

	req := httptest.NewRequest("POST", "/api/groups/grp_1/rules/rule_1/whitelist",
		strings.NewReader(`{"userId":"usr_1"}`))
	req.SetPathValue("groupID", "grp_1")
	req.SetPathValue("ruleID", "rule_1")
	rec := httptest.NewRecorder()
	h.HandleWhitelistAdd(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
