package core

import (
	"errors"
	"fmt"
	"math/big"

	"mrtcore/native/common"
	"mrtcore/native/settlement"
)

var (
	// ErrNotAdmin is returned when a caller invokes an admin operation
	// without holding the admin role.
	ErrNotAdmin = errors.New("caller lacks admin role")
	// ErrUnknownModule is returned when a pause switch names a module the
	// core does not carry.
	ErrUnknownModule = errors.New("unknown module")
	// ErrUnknownRole is returned when a role grant names a role the core
	// does not recognize.
	ErrUnknownRole = errors.New("unknown role")
	// ErrInsufficientFees is returned when a fee withdrawal exceeds the
	// accrued, not yet withdrawn fee balance.
	ErrInsufficientFees = errors.New("insufficient accrued fees")
)

func (n *Node) requireAdmin(caller [20]byte) error {
	if !n.state.HasRole(common.RoleAdmin, caller[:]) {
		return ErrNotAdmin
	}
	return nil
}

// AdminRegisterToken adds a token to the supported set.
func (n *Node) AdminRegisterToken(caller [20]byte, symbol, name string, decimals uint8) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		return n.state.RegisterToken(symbol, name, decimals)
	})
}

// AdminRemoveToken drops a token from the supported set. Existing balances
// are untouched; only admission of new work is affected.
func (n *Node) AdminRemoveToken(caller [20]byte, symbol string) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		return n.state.RemoveToken(symbol)
	})
}

// AdminGrantRole assigns a role to an address. Only the admin and executor
// roles exist.
func (n *Node) AdminGrantRole(caller [20]byte, role string, addr [20]byte) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		if role != common.RoleAdmin && role != common.RoleExecutor {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return n.state.SetRole(role, addr[:])
	})
}

// AdminRevokeRole removes a role from an address. Revoking an address that
// never held the role is a no-op.
func (n *Node) AdminRevokeRole(caller [20]byte, role string, addr [20]byte) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		if role != common.RoleAdmin && role != common.RoleExecutor {
			return fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		return n.state.UnsetRole(role, addr[:])
	})
}

// AdminSetParam stores a named module parameter, e.g. the settlement
// execution fee or the automation gas ceiling.
func (n *Node) AdminSetParam(caller [20]byte, name string, value *big.Int) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		return n.state.SetParamBig(name, value)
	})
}

// AdminSetPaused flips the pause switch for one module. Paused modules
// reject state-changing calls while reads keep working.
func (n *Node) AdminSetPaused(caller [20]byte, module string, paused bool) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		if !knownModule(module) {
			return fmt.Errorf("%w: %s", ErrUnknownModule, module)
		}
		return n.state.SetPaused(module, paused)
	})
}

// AdminForceCancel cancels a stuck or expired batch regardless of its timing
// window, refunding the deposit to the initiator.
func (n *Node) AdminForceCancel(caller [20]byte, batchID uint64) (*settlement.PayoutBatch, error) {
	var out *settlement.PayoutBatch
	err := n.writeOp(func() error {
		var err error
		out, err = n.settlement.ForceCancel(caller, batchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AdminWithdrawFees moves accrued execution fees out of the custody vault.
// The withdrawable amount is the accrued total minus prior withdrawals.
func (n *Node) AdminWithdrawFees(caller [20]byte, token string, to [20]byte, amount *big.Int) error {
	return n.writeOp(func() error {
		if err := n.requireAdmin(caller); err != nil {
			return err
		}
		if amount == nil || amount.Sign() <= 0 {
			return fmt.Errorf("withdraw amount must be positive")
		}
		breakdown, err := n.state.Custody(token)
		if err != nil {
			return err
		}
		available := new(big.Int).Sub(breakdown.FeesAccrued, breakdown.FeesWithdrawn)
		if available.Cmp(amount) < 0 {
			return ErrInsufficientFees
		}
		vault := n.state.CustodyVault()
		if err := n.state.Transfer(breakdown.Token, vault, to, amount); err != nil {
			return err
		}
		return n.state.AddFeesWithdrawn(breakdown.Token, amount)
	})
}

// Pauses returns the pause switch for every module.
func (n *Node) Pauses() map[string]bool {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	out := make(map[string]bool, len(ModuleNames))
	for _, module := range ModuleNames {
		out[module] = n.state.IsPaused(module)
	}
	return out
}

// RoleMembers returns the addresses holding the named role.
func (n *Node) RoleMembers(role string) ([][20]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	members, err := n.state.RoleMembers(role)
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(members))
	for _, member := range members {
		if len(member) != 20 {
			continue
		}
		var addr [20]byte
		copy(addr[:], member)
		out = append(out, addr)
	}
	return out, nil
}

// Param returns a named module parameter, or zero when it was never set.
func (n *Node) Param(name string) (*big.Int, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.state.ParamBig(name, nil)
}

func knownModule(module string) bool {
	for _, known := range ModuleNames {
		if module == known {
			return true
		}
	}
	return false
}
