package pg

import (
	"context"
	"database/sql"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/roles"
	"harmonia.org/internal/session"
)

func queryRoles(ctx context.Context, tx *sql.Tx, query string, arg any) ([]roles.Role, error) {
	rows, err := tx.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fault.Database(err)
	}
	defer rows.Close()
	var out []roles.Role
	for rows.Next() {
		var r roles.Role
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// MemberRoles lists the roles associated directly with a member.
func (s *Store) MemberRoles(ctx context.Context, sess *session.Session, memberID int) ([]roles.Role, error) {
	var out []roles.Role
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = queryRoles(ctx, tx,
			`select system_role from member_role_associations where member_id = $1`, memberID)
		return err
	})
	return out, err
}

// MemberWorkgroups lists the workgroups a member belongs to.
func (s *Store) MemberWorkgroups(ctx context.Context, sess *session.Session, memberID int) ([]int, error) {
	var out []int
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`select workgroup_id from workgroup_member_relationships where member_id = $1`, memberID)
		if err != nil {
			return fault.Database(err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	return out, err
}

// WorkgroupRoles lists the roles every member of a workgroup inherits.
func (s *Store) WorkgroupRoles(ctx context.Context, sess *session.Session, workgroupID int) ([]roles.Role, error) {
	var out []roles.Role
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = queryRoles(ctx, tx,
			`select system_role from workgroup_role_associations where workgroup_id = $1`, workgroupID)
		return err
	})
	return out, err
}

// AssociateMemberRole grants a role directly to a member. Public is held by
// everyone already and can never be granted explicitly.
func (s *Store) AssociateMemberRole(ctx context.Context, sess *session.Session, memberID int, role roles.Role) error {
	if role == roles.Public {
		return fault.Bad("the public role cannot be associated")
	}
	return sess.Run(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into member_role_associations (member_id, system_role)
			values ($1, $2) on conflict do nothing
		`, memberID, role); err != nil {
			return fault.Database(err)
		}
		return nil
	})
}

// DissociateMemberRole revokes a directly granted role. Member is the
// implicit floor of every principal and can never be revoked.
func (s *Store) DissociateMemberRole(ctx context.Context, sess *session.Session, memberID int, role roles.Role) error {
	if role == roles.Member {
		return fault.Bad("the member role cannot be dissociated")
	}
	return sess.Run(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`delete from member_role_associations where member_id = $1 and system_role = $2`,
			memberID, role)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return fault.Bad("role is not associated with this member")
		}
		return nil
	})
}

// AssociateWorkgroupRole grants a role to every member of a workgroup.
func (s *Store) AssociateWorkgroupRole(ctx context.Context, sess *session.Session, workgroupID int, role roles.Role) error {
	if role == roles.Public {
		return fault.Bad("the public role cannot be associated")
	}
	return sess.Run(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into workgroup_role_associations (workgroup_id, system_role)
			values ($1, $2) on conflict do nothing
		`, workgroupID, role); err != nil {
			return fault.Database(err)
		}
		return nil
	})
}

// DissociateWorkgroupRole revokes a workgroup-level role grant.
func (s *Store) DissociateWorkgroupRole(ctx context.Context, sess *session.Session, workgroupID int, role roles.Role) error {
	if role == roles.Member {
		return fault.Bad("the member role cannot be dissociated")
	}
	return sess.Run(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`delete from workgroup_role_associations where workgroup_id = $1 and system_role = $2`,
			workgroupID, role)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return fault.Bad("role is not associated with this workgroup")
		}
		return nil
	})
}
