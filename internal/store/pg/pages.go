package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/pages"
	"harmonia.org/internal/session"
)

// ErrPageNotFound is returned when no page matches the lookup.
var ErrPageNotFound = errors.New("page not found")

const pageColumns = `id, title, content, published, created_at, updated_at`

func scanPage(row interface{ Scan(...any) error }) (pages.Page, error) {
	var p pages.Page
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.Published, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// CreatePage stores a new, unpublished page.
func (s *Store) CreatePage(ctx context.Context, sess *session.Session, title, content string) (pages.Page, error) {
	if strings.TrimSpace(title) == "" {
		return pages.Page{}, fault.Bad("page title is required")
	}
	var p pages.Page
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = scanPage(tx.QueryRowContext(ctx, `
			insert into pages (title, content) values ($1, $2)
			returning `+pageColumns, title, content))
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return p, err
}

// FindPage loads one page. When publishedOnly is set, unpublished pages are
// reported as absent rather than forbidden.
func (s *Store) FindPage(ctx context.Context, sess *session.Session, id int, publishedOnly bool) (pages.Page, error) {
	var p pages.Page
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		p, err = scanPage(tx.QueryRowContext(ctx,
			`select `+pageColumns+` from pages where id = $1 and (published or not $2)`,
			id, publishedOnly))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPageNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return p, err
}

// ListPages returns pages without their bodies, newest first.
func (s *Store) ListPages(ctx context.Context, sess *session.Session, publishedOnly bool) ([]pages.Page, error) {
	out := []pages.Page{}
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			select id, title, '', published, created_at, updated_at
			from pages where published or not $1
			order by created_at desc, id desc
		`, publishedOnly)
		if err != nil {
			return fault.Database(err)
		}
		defer rows.Close()
		for rows.Next() {
			p, err := scanPage(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})
	return out, err
}

// UpdatePage rewrites a page's title, body and publication flag.
func (s *Store) UpdatePage(ctx context.Context, sess *session.Session, p pages.Page) (pages.Page, error) {
	if strings.TrimSpace(p.Title) == "" {
		return pages.Page{}, fault.Bad("page title is required")
	}
	var updated pages.Page
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = scanPage(tx.QueryRowContext(ctx, `
			update pages set title = $2, content = $3, published = $4, updated_at = now()
			where id = $1
			returning `+pageColumns,
			p.ID, p.Title, p.Content, p.Published))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrPageNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return updated, err
}

// DeletePage removes a page permanently.
func (s *Store) DeletePage(ctx context.Context, sess *session.Session, id int) error {
	return sess.Run(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `delete from pages where id = $1`, id)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return ErrPageNotFound
		}
		return nil
	})
}
