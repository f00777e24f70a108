package pg

import "context"

// Schema statements, applied in order. Idempotent so bootstrap can run on
// every start when enabled. actor_id uses ON DELETE SET NULL: deleting a
// user never breaks the audit trail, the denormalized actor_email keeps the
// rows readable.
var schemaStatements = []string{
	`create table if not exists users (
		id text primary key,
		full_name text not null,
		email text not null,
		password_hash text not null,
		role text not null default 'USER',
		active boolean not null default true,
		phone text not null default '',
		department text not null default '',
		function text not null default '',
		reset_token text,
		reset_token_expiry timestamptz,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
	`create unique index if not exists users_email_lower_idx on users (lower(email))`,

	`create table if not exists audit_log (
		id text primary key,
		actor_id text references users(id) on delete set null,
		actor_email text not null,
		action text not null,
		entity_kind text not null,
		entity_id text not null default '',
		before_state jsonb,
		after_state jsonb,
		occurred_at timestamptz not null default now(),
		origin text not null default ''
	)`,
	`create index if not exists audit_log_occurred_idx on audit_log (occurred_at desc)`,
	`create index if not exists audit_log_entity_idx on audit_log (entity_kind, occurred_at desc)`,

	`create table if not exists anomalies (
		id text primary key,
		source_kind text not null,
		source_id text not null,
		year int not null,
		month int not null,
		description text not null default '',
		anomaly_type text not null,
		severity_score double precision not null,
		detected_at timestamptz not null default now(),
		resolved boolean not null default false,
		resolved_at timestamptz,
		resolved_by text,
		unique (source_kind, source_id)
	)`,
	`create index if not exists anomalies_detected_idx on anomalies (detected_at desc)`,

	`create table if not exists electricity_data (
		id text primary key,
		year int not null,
		month int not null,
		network60kv_active_energy double precision not null default 0,
		network60kv_reactive_energy double precision not null default 0,
		network60kv_power_factor double precision not null default 0,
		network60kv_peak double precision not null default 0,
		network22kv_active_energy double precision not null default 0,
		network22kv_reactive_energy double precision not null default 0,
		network22kv_power_factor double precision not null default 0,
		network22kv_peak double precision not null default 0,
		created_by text,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,

	`create table if not exists water_data (
		id text primary key,
		year int not null,
		month int not null,
		f3bis double precision not null default 0,
		f3 double precision not null default 0,
		se2 double precision not null default 0,
		se3bis double precision not null default 0,
		created_by text,
		created_at timestamptz not null default now(),
		updated_at timestamptz not null default now()
	)`,
}

// EnsureSchema creates any missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
