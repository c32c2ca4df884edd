package registry

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

const agentRoleSelect = `
SELECT a.id, a.agent_role, a.agent_description, a.allowed_tools,
       a.default_developer_prompt, a.default_user_prompt,
       a.model_id, a.reasoning_level, a.tool_choice,
       COALESCE(m.supports_reasoning, 0)
FROM agent_roles a
LEFT JOIN models m ON m.id = a.model_id
`

func scanAgentRole(scan func(dest ...any) error) (AgentRole, error) {
	var a AgentRole
	var tools string
	var modelID sql.NullInt64
	var modelReasoning int
	err := scan(
		&a.ID,
		&a.AgentRole,
		&a.AgentDescription,
		&tools,
		&a.DefaultDeveloperPrompt,
		&a.DefaultUserPrompt,
		&modelID,
		&a.ReasoningLevel,
		&a.ToolChoice,
		&modelReasoning,
	)
	if err != nil {
		return AgentRole{}, err
	}
	a.AllowedTools = NormalizeAllowedTools(decodeAllowedTools(tools))
	if modelID.Valid {
		id := modelID.Int64
		a.ModelID = &id
	}
	// reasoning_level is only meaningful for reasoning-capable models. It is
	// blanked on read, never rewritten in storage, so re-linking the model
	// brings the stored level back.
	if !modelID.Valid || modelReasoning == 0 {
		a.ReasoningLevel = ""
	}
	return a, nil
}

func (s *Store) ListAgentRoles(ctx context.Context) ([]AgentRole, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.db.QueryContext(ctx, agentRoleSelect+`ORDER BY a.agent_role ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]AgentRole, 0, 8)
	for rows.Next() {
		a, err := scanAgentRole(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAgentRole(ctx context.Context, name string) (*AgentRole, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("missing agent_role")
	}

	row := s.db.QueryRowContext(ctx, agentRoleSelect+`WHERE a.agent_role = ?`, name)
	a, err := scanAgentRole(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// UpsertAgentRole writes the role keyed by its agent_role name (or by id when
// supplied). The allowed tools list is re-normalized on every write so the
// completion sentinel is always present.
//
// model_id is not verified against the models table.
func (s *Store) UpsertAgentRole(ctx context.Context, a AgentRole) (*AgentRole, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a.AgentRole = strings.TrimSpace(a.AgentRole)
	a.AgentDescription = strings.TrimSpace(a.AgentDescription)
	a.DefaultDeveloperPrompt = strings.TrimSpace(a.DefaultDeveloperPrompt)
	a.DefaultUserPrompt = strings.TrimSpace(a.DefaultUserPrompt)
	if a.AgentRole == "" {
		return nil, errors.New("missing agent_role")
	}
	if a.ModelID != nil && *a.ModelID <= 0 {
		a.ModelID = nil
	}
	a.AllowedTools = NormalizeAllowedTools(a.AllowedTools)
	a.ReasoningLevel = normalizeReasoningLevel(a.ReasoningLevel)
	a.ToolChoice = normalizeToolChoice(a.ToolChoice)

	tools := encodeAllowedTools(a.AllowedTools)
	var modelID any
	if a.ModelID != nil {
		modelID = *a.ModelID
	}

	if a.ID > 0 {
		res, err := s.db.ExecContext(ctx, `
UPDATE agent_roles
SET agent_role = ?, agent_description = ?, allowed_tools = ?,
    default_developer_prompt = ?, default_user_prompt = ?,
    model_id = ?, reasoning_level = ?, tool_choice = ?
WHERE id = ?
`, a.AgentRole, a.AgentDescription, tools, a.DefaultDeveloperPrompt, a.DefaultUserPrompt, modelID, a.ReasoningLevel, a.ToolChoice, a.ID)
		if err != nil {
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return s.GetAgentRole(ctx, a.AgentRole)
		}
	}

	var existingID int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM agent_roles WHERE agent_role = ?
`, a.AgentRole).Scan(&existingID)
	switch {
	case err == nil:
		_, err = s.db.ExecContext(ctx, `
UPDATE agent_roles
SET agent_description = ?, allowed_tools = ?,
    default_developer_prompt = ?, default_user_prompt = ?,
    model_id = ?, reasoning_level = ?, tool_choice = ?
WHERE id = ?
`, a.AgentDescription, tools, a.DefaultDeveloperPrompt, a.DefaultUserPrompt, modelID, a.ReasoningLevel, a.ToolChoice, existingID)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
INSERT INTO agent_roles(agent_role, agent_description, allowed_tools,
  default_developer_prompt, default_user_prompt, model_id, reasoning_level, tool_choice)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
`, a.AgentRole, a.AgentDescription, tools, a.DefaultDeveloperPrompt, a.DefaultUserPrompt, modelID, a.ReasoningLevel, a.ToolChoice)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	return s.GetAgentRole(ctx, a.AgentRole)
}

func (s *Store) DeleteAgentRole(ctx context.Context, name string) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("missing agent_role")
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_roles WHERE agent_role = ?`, name)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// BlankAgentRole returns the placeholder record the UI renders for an unknown
// role name: all fields empty except the requested name, the sentinel tool
// and the default tool choice.
func BlankAgentRole(name string) AgentRole {
	return AgentRole{
		AgentRole:    strings.TrimSpace(name),
		AllowedTools: []string{SentinelTool},
		ToolChoice:   "auto",
	}
}
