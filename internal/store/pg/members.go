package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"harmonia.org/internal/fault"
	"harmonia.org/internal/members"
	"harmonia.org/internal/session"
)

const memberColumns = `id, first_name, last_name, email_address,
	coalesce(phone_number,''), coalesce(description,''),
	active, allow_privacy_info_sharing, created_at`

func scanMember(row interface{ Scan(...any) error }) (members.Member, error) {
	var m members.Member
	err := row.Scan(&m.ID, &m.FirstName, &m.LastName, &m.EmailAddress,
		&m.PhoneNumber, &m.Description, &m.Active, &m.AllowPrivacyInfoSharing, &m.CreatedAt)
	return m, err
}

// FindExtendedByEmail loads a member plus its sealed login secret.
func (s *Store) FindExtendedByEmail(ctx context.Context, sess *session.Session, email string) (members.ExtendedMember, error) {
	var m members.ExtendedMember
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var activation sql.NullString
		var activatedAt sql.NullTime
		err := tx.QueryRowContext(ctx, `
			select `+memberColumns+`,
				activation_string, activation_time, otp_secret_cipher, otp_nonce
			from members where lower(email_address) = lower($1)
		`, email).Scan(
			&m.ID, &m.FirstName, &m.LastName, &m.EmailAddress,
			&m.PhoneNumber, &m.Description, &m.Active, &m.AllowPrivacyInfoSharing, &m.CreatedAt,
			&activation, &activatedAt, &m.OTPSecretCipher, &m.OTPNonce,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return members.ErrNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		m.ActivationString = activation.String
		if activatedAt.Valid {
			m.ActivationTime = activatedAt.Time
		}
		return nil
	})
	return m, err
}

// FindByID loads the public projection of one member.
func (s *Store) FindByID(ctx context.Context, sess *session.Session, id int) (members.Member, error) {
	var m members.Member
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = scanMember(tx.QueryRowContext(ctx,
			`select `+memberColumns+` from members where id = $1`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return members.ErrNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return m, err
}

// Register creates an inactive member awaiting activation. The caller
// supplies the one-time activation string handed to the new member out of
// band.
func (s *Store) Register(ctx context.Context, sess *session.Session, reg members.Registration, activation string) (members.Member, error) {
	if strings.TrimSpace(reg.FirstName) == "" || strings.TrimSpace(reg.LastName) == "" {
		return members.Member{}, fault.Bad("first and last name are required")
	}
	if !strings.Contains(reg.EmailAddress, "@") {
		return members.Member{}, fault.Bad("email address is not valid")
	}
	var m members.Member
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = scanMember(tx.QueryRowContext(ctx, `
			insert into members (first_name, last_name, email_address, phone_number, activation_string, activation_time)
			values ($1, $2, $3, nullif($4,''), $5, now())
			returning `+memberColumns,
			reg.FirstName, reg.LastName, reg.EmailAddress, reg.PhoneNumber, activation))
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return m, err
}

// FindByActivation resolves a pending member by activation string. Expired
// strings (older than a day) are treated as unknown.
func (s *Store) FindByActivation(ctx context.Context, sess *session.Session, activation string) (members.Member, error) {
	var m members.Member
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		m, err = scanMember(tx.QueryRowContext(ctx, `
			select `+memberColumns+` from members
			where activation_string = $1 and activation_time > $2
		`, activation, time.Now().Add(-24*time.Hour)))
		if errors.Is(err, sql.ErrNoRows) {
			return members.ErrNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return m, err
}

// Activate stores the sealed login secret, marks the member active and
// burns the activation string.
func (s *Store) Activate(ctx context.Context, sess *session.Session, memberID int, secretCipher, nonce []byte) error {
	return sess.Run(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			update members
			set active = true, otp_secret_cipher = $2, otp_nonce = $3,
				activation_string = null, activation_time = null
			where id = $1
		`, memberID, secretCipher, nonce)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return members.ErrNotFound
		}
		return nil
	})
}

// Update rewrites a member's editable profile fields.
func (s *Store) Update(ctx context.Context, sess *session.Session, m members.Member) (members.Member, error) {
	var updated members.Member
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		var err error
		updated, err = scanMember(tx.QueryRowContext(ctx, `
			update members
			set first_name = $2, last_name = $3, email_address = $4,
				phone_number = nullif($5,''), description = nullif($6,''),
				allow_privacy_info_sharing = $7
			where id = $1
			returning `+memberColumns,
			m.ID, m.FirstName, m.LastName, m.EmailAddress, m.PhoneNumber, m.Description, m.AllowPrivacyInfoSharing))
		if errors.Is(err, sql.ErrNoRows) {
			return members.ErrNotFound
		}
		if err != nil {
			return fault.Database(err)
		}
		return nil
	})
	return updated, err
}

// Deactivate disables login without destroying history.
func (s *Store) Deactivate(ctx context.Context, sess *session.Session, memberID int) error {
	return sess.Run(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`update members set active = false, otp_secret_cipher = null, otp_nonce = null where id = $1`,
			memberID)
		if err != nil {
			return fault.Database(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fault.Database(err)
		}
		if n == 0 {
			return members.ErrNotFound
		}
		return nil
	})
}

// Search pages through members matching the query against name and email.
func (s *Store) Search(ctx context.Context, sess *session.Session, query string, page, pageSize int) (members.SearchResult, error) {
	if page < 0 {
		page = 0
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 25
	}
	pattern := "%" + strings.TrimSpace(query) + "%"

	result := members.SearchResult{Page: page, PageSize: pageSize, Items: []members.Member{}}
	err := sess.Run(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `
			select count(*) from members
			where first_name ilike $1 or last_name ilike $1 or email_address ilike $1
		`, pattern).Scan(&result.TotalCount); err != nil {
			return fault.Database(err)
		}
		rows, err := tx.QueryContext(ctx, `
			select `+memberColumns+` from members
			where first_name ilike $1 or last_name ilike $1 or email_address ilike $1
			order by last_name, first_name, id
			limit $2 offset $3
		`, pattern, pageSize, page*pageSize)
		if err != nil {
			return fault.Database(err)
		}
		defer rows.Close()
		for rows.Next() {
			m, err := scanMember(rows)
			if err != nil {
				return fault.Database(err)
			}
			result.Items = append(result.Items, m)
		}
		return rows.Err()
	})
	return result, err
}
