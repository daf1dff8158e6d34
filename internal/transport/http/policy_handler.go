package httptransport

import (
	"strings"

	"github.com/gin-gonic/gin"

	"attachpurge/backend/internal/domain"
	"attachpurge/backend/internal/service"
	"attachpurge/backend/internal/storage"
)

// SystemScopeAlias 路径中代表系统策略的 scope
const SystemScopeAlias = "_system"

// PolicyHandler 保留策略API处理器
type PolicyHandler struct {
	policies *service.PolicyService
}

// NewPolicyHandler 创建策略处理器
func NewPolicyHandler(policies *service.PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

// policyResponse 策略及其所属 scope
type policyResponse struct {
	Scope  string         `json:"scope"`
	Policy *domain.Policy `json:"policy"`
}

// scopeParam 把路径参数转换为存储使用的 scope key
func scopeParam(c *gin.Context) string {
	scope := strings.TrimSpace(c.Param("scope"))
	if scope == SystemScopeAlias {
		return storage.SystemScope
	}
	return scope
}

func scopeName(scopeKey string) string {
	if scopeKey == storage.SystemScope {
		return SystemScopeAlias
	}
	return scopeKey
}

// Get 获取策略
//
// GET /api/v1/policies/:scope
func (h *PolicyHandler) Get(c *gin.Context) {
	scopeKey := scopeParam(c)

	policy, err := h.policies.Get(c.Request.Context(), scopeKey)
	if err != nil {
		writeError(c, err, MsgPolicyGetFailed)
		return
	}
	Success(c, policyResponse{Scope: scopeName(scopeKey), Policy: policy})
}

// Put 创建或替换策略
//
// PUT /api/v1/policies/:scope
func (h *PolicyHandler) Put(c *gin.Context) {
	scopeKey := scopeParam(c)

	var req domain.Policy
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	saved, err := h.policies.Save(c.Request.Context(), scopeKey, &req)
	if err != nil {
		writeError(c, err, MsgPolicySaveFailed)
		return
	}
	SuccessWithMsg(c, "policy saved", policyResponse{Scope: scopeName(scopeKey), Policy: saved})
}

// Delete 删除策略
//
// DELETE /api/v1/policies/:scope
func (h *PolicyHandler) Delete(c *gin.Context) {
	scopeKey := scopeParam(c)

	if err := h.policies.Delete(c.Request.Context(), scopeKey); err != nil {
		writeError(c, err, MsgInternalError)
		return
	}
	SuccessWithMsg(c, "policy deleted", gin.H{"scope": scopeName(scopeKey)})
}
