package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/members"
	"harmonia.org/internal/session"
	"harmonia.org/internal/workgroups"
)

// ErrWorkgroupNotFound is returned when no workgroup matches the lookup.
var ErrWorkgroupNotFound = errors.New("workgroup not found")

// CreateWorkgroup registers a new workgroup.
func (s *Store) CreateWorkgroup(ctx context.Context, sess *session.Session, name string) (workgroups.Workgroup, error) {
	if strings.TrimSpace(name) == "" {
		return workgroups.Workgroup{}, fault.Bad("workgroup name is required")
	}
	var wg workgroups.Workgroup
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			insert into workgroups (name) values ($1)
			returning id, name, created_at
		`, name).Scan(&wg.ID, &wg.Name, &wg.CreatedAt)
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return wg, err
}

// FindWorkgroup loads one workgroup by id.
func (s *Store) FindWorkgroup(ctx context.Context, sess *session.Session, id int) (workgroups.Workgroup, error) {
	var wg workgroups.Workgroup
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`select id, name, created_at from workgroups where id = $1`, id).
			Scan(&wg.ID, &wg.Name, &wg.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWorkgroupNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return wg, err
}

// ListWorkgroups returns all workgroups ordered by name.
func (s *Store) ListWorkgroups(ctx context.Context, sess *session.Session) ([]workgroups.Workgroup, error) {
	out := []workgroups.Workgroup{}
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `select id, name, created_at from workgroups order by name, id`)
		if err != nil {
			return fault.Database(err)
		}
		defer rows.Close()
		for rows.Next() {
			var wg workgroups.Workgroup
			if err := rows.Scan(&wg.ID, &wg.Name, &wg.CreatedAt); err != nil {
				return err
			}
			out = append(out, wg)
		}
		return rows.Err()
	})
	return out, err
}

// RenameWorkgroup updates a workgroup's name.
func (s *Store) RenameWorkgroup(ctx context.Context, sess *session.Session, id int, name string) (workgroups.Workgroup, error) {
	if strings.TrimSpace(name) == "" {
		return workgroups.Workgroup{}, fault.Bad("workgroup name is required")
	}
	var wg workgroups.Workgroup
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			update workgroups set name = $2 where id = $1
			returning id, name, created_at
		`, id, name).Scan(&wg.ID, &wg.Name, &wg.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrWorkgroupNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return wg, err
}

// DeleteWorkgroup removes the workgroup with its memberships and role grants.
func (s *Store) DeleteWorkgroup(ctx context.Context, sess *session.Session, id int) error {
	return sess.Run(ctx, func(tx *sql.Tx) error {
		for _, q := range []string{
			`delete from workgroup_role_associations where workgroup_id = $1`,
			`delete from workgroup_member_relationships where workgroup_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return fault.Database(err)
			}
		}
		res, err := tx.ExecContext(ctx, `delete from workgroups where id = $1`, id)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return ErrWorkgroupNotFound
		}
		return nil
	})
}

// AddWorkgroupMember enrolls a member into a workgroup.
func (s *Store) AddWorkgroupMember(ctx context.Context, sess *session.Session, workgroupID, memberID int) error {
	return sess.Run(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			insert into workgroup_member_relationships (workgroup_id, member_id)
			values ($1, $2) on conflict do nothing
		`, workgroupID, memberID); err != nil {
			return fault.Database(err)
		}
		return nil
	})
}

// RemoveWorkgroupMember withdraws a member from a workgroup.
func (s *Store) RemoveWorkgroupMember(ctx context.Context, sess *session.Session, workgroupID, memberID int) error {
	return sess.Run(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`delete from workgroup_member_relationships where workgroup_id = $1 and member_id = $2`,
			workgroupID, memberID)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return fault.Bad("member does not belong to this workgroup")
		}
		return nil
	})
}

// WorkgroupMembers lists the members enrolled in a workgroup.
func (s *Store) WorkgroupMembers(ctx context.Context, sess *session.Session, workgroupID int) ([]members.Member, error) {
	out := []members.Member{}
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			select `+memberColumns+` from members m
			join workgroup_member_relationships r on r.member_id = m.id
			where r.workgroup_id = $1
			order by m.last_name, m.first_name, m.id
		`, workgroupID)
		if err != nil {
			return fault.Database(err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMember(rows)
			if err != nil {
				return err
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	return out, err
}
