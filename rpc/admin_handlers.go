package rpc

import (
	"net/http"

	"mrtcore/native/automation"
	"mrtcore/native/common"
	"mrtcore/native/settlement"
)

type adminTokenParams struct {
	Caller   string `json:"caller"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name,omitempty"`
	Decimals uint8  `json:"decimals,omitempty"`
}

type adminRoleParams struct {
	Caller  string `json:"caller"`
	Role    string `json:"role,omitempty"`
	Address string `json:"address"`
}

type adminParamParams struct {
	Caller string `json:"caller"`
	Value  string `json:"value"`
}

type adminForceCancelParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type adminWithdrawParams struct {
	Caller string `json:"caller"`
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type adminPauseParams struct {
	Caller string `json:"caller"`
	Module string `json:"module"`
	Paused bool   `json:"paused"`
}

func (s *Server) handleAdminAddSupportedToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminTokenParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AdminRegisterToken(caller, params.Symbol, params.Name, params.Decimals); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"symbol":   params.Symbol,
		"name":     params.Name,
		"decimals": params.Decimals,
	})
}

func (s *Server) handleAdminRemoveSupportedToken(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminTokenParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AdminRemoveToken(caller, params.Symbol); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{"symbol": params.Symbol, "removed": true})
}

func (s *Server) grantRole(w http.ResponseWriter, req *RPCRequest, params adminRoleParams, role string, grant bool) {
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	member, err := parseBech32Address(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if grant {
		err = s.node.AdminGrantRole(caller, role, member)
	} else {
		err = s.node.AdminRevokeRole(caller, role, member)
	}
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"role":    role,
		"address": params.Address,
		"granted": grant,
	})
}

func (s *Server) handleAdminAddExecutor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminRoleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.grantRole(w, req, params, common.RoleExecutor, true)
}

func (s *Server) handleAdminRemoveExecutor(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminRoleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.grantRole(w, req, params, common.RoleExecutor, false)
}

func (s *Server) handleAdminGrantRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminRoleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.grantRole(w, req, params, params.Role, true)
}

func (s *Server) handleAdminRevokeRole(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminRoleParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.grantRole(w, req, params, params.Role, false)
}

func (s *Server) setParam(w http.ResponseWriter, req *RPCRequest, params adminParamParams, name string) {
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	value, err := parseNonNegativeBigInt(params.Value)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AdminSetParam(caller, name, value); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"name": name, "value": value.String()})
}

func (s *Server) handleAdminSetExecutionFee(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminParamParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.setParam(w, req, params, settlement.ParamExecutionFee)
}

func (s *Server) handleAdminSetMaxGasLimit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminParamParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	s.setParam(w, req, params, automation.ParamMaxGasLimit)
}

func (s *Server) handleAdminForceCancel(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminForceCancelParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	batch, err := s.node.AdminForceCancel(caller, params.ID)
	if err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, batchToJSON(batch))
}

func (s *Server) handleAdminWithdrawFees(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminWithdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	to, err := parseBech32Address(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parsePositiveBigInt(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AdminWithdrawFees(caller, params.Token, to, amount); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token":     params.Token,
		"to":        params.To,
		"withdrawn": amount.String(),
	})
}

func (s *Server) handleAdminSetPaused(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params adminPauseParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseBech32Address(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AdminSetPaused(caller, params.Module, params.Paused); err != nil {
		writeModuleError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]interface{}{
		"module": params.Module,
		"paused": params.Paused,
	})
}
