package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/madschristensen99/hashield/internal/keyring"
)

// walletGenerate creates a fresh BIP39 mnemonic. The mnemonic is
// returned once and never stored in the clear.
func (s *Server) walletGenerate(ctx context.Context, params json.RawMessage) (interface{}, error) {
	mnemonic, err := keyring.GenerateMnemonic()
	if err != nil {
		return nil, err
	}
	return map[string]string{"mnemonic": mnemonic}, nil
}

// walletImport loads a mnemonic as the wallet master seed. With a
// password given, the mnemonic is also encrypted and written to the
// configured seed file so the daemon can unlock itself on restart.
func (s *Server) walletImport(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Mnemonic   string `json:"mnemonic"`
		Passphrase string `json:"passphrase"`
		Password   string `json:"password"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}

	if err := s.keys.ImportMnemonic(p.Mnemonic, p.Passphrase); err != nil {
		return nil, err
	}

	persisted := false
	if p.Password != "" && s.seedFile != "" {
		encrypted, err := keyring.EncryptMnemonic(p.Mnemonic, p.Password)
		if err != nil {
			return nil, err
		}
		if err := keyring.SaveEncryptedSeed(encrypted, s.seedFile); err != nil {
			return nil, err
		}
		persisted = true
	}

	controller, err := s.keys.ControllerAddress()
	if err != nil {
		return nil, err
	}

	s.log.Info("wallet imported", "controller", controller.Hex(), "persisted", persisted)

	return map[string]interface{}{
		"imported":   true,
		"persisted":  persisted,
		"controller": controller.Hex(),
	}, nil
}

// walletValidateMnemonic checks a mnemonic without importing it.
func (s *Server) walletValidateMnemonic(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Mnemonic string `json:"mnemonic"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return map[string]bool{"valid": keyring.ValidateMnemonic(p.Mnemonic)}, nil
}

// walletInfo reports wallet status without exposing key material.
func (s *Server) walletInfo(ctx context.Context, params json.RawMessage) (interface{}, error) {
	info := map[string]interface{}{
		"initialized": s.keys.HasMaster(),
		"chainId":     s.chainID,
	}

	if s.keys.HasMaster() {
		controller, err := s.keys.ControllerAddress()
		if err != nil {
			return nil, err
		}
		info["controller"] = controller.Hex()

		if session, err := s.keys.Current(); err == nil {
			info["sessionIndex"] = session.Index
			info["sessionAddress"] = s.exposedAddress(session.Address).Hex()
		}
	}

	return info, nil
}

// walletClear wipes the in-memory master seed and session state and
// resets the persisted session counter so the next wallet starts
// allocating from index 1 again.
func (s *Server) walletClear(ctx context.Context, params json.RawMessage) (interface{}, error) {
	s.keys.Clear()
	if err := s.store.ClearWallet(); err != nil {
		s.log.Warn("failed to reset session counter", "error", err)
	}
	s.log.Info("wallet cleared")
	return map[string]bool{"cleared": true}, nil
}

// SessionInfo is one derived session identity as returned over RPC.
type SessionInfo struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
	Current bool   `json:"current"`
}

// sessionList returns every session derived so far.
func (s *Server) sessionList(ctx context.Context, params json.RawMessage) (interface{}, error) {
	sessions, err := s.keys.Sessions()
	if err != nil {
		return nil, err
	}

	var currentIndex uint32
	if current, err := s.keys.Current(); err == nil {
		currentIndex = current.Index
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, session := range sessions {
		infos = append(infos, SessionInfo{
			Index:   session.Index,
			Address: session.Address.Hex(),
			Current: session.Index == currentIndex,
		})
	}
	return infos, nil
}

// sessionRestore re-activates a previously derived session.
func (s *Server) sessionRestore(ctx context.Context, params json.RawMessage) (interface{}, error) {
	var p struct {
		Index uint32 `json:"index"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}

	session, err := s.keys.Restore(p.Index)
	if err != nil {
		return nil, err
	}

	s.log.Info("session restored", "index", session.Index)

	return map[string]interface{}{
		"index":   session.Index,
		"address": s.exposedAddress(session.Address).Hex(),
	}, nil
}
