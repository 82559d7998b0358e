package sqlinline

const QExpireGenerationRecords = `--sql 4554ed23-f08d-4cda-aced-979696d56d40
with expirable as (
    select id
    from generation_records
    where is_permanent = false
      and expires_at is not null
      and expires_at <= $1::timestamptz
      and status in ('PENDING', 'GENERATING', 'FAILED')
    order by expires_at asc
    limit $2::int
    for update skip locked
),
expired as (
    update generation_records g
    set status = 'EXPIRED',
        file_url = null,
        file_size = null,
        mime_type = null,
        duration_seconds = null,
        quality_score = null,
        error_message = null,
        error_details = null,
        next_retry_at = null,
        deadline = null,
        version = g.version + 1,
        updated_at = $1::timestamptz
    where g.id in (select id from expirable)
    returning g.id
)
select id from expired;
`

const QListFailedGenerationRecordsBefore = `--sql 1db4f9c5-ec1a-403d-88c4-d376ffbb0517
select
  id,
  job_id,
  user_id,
  content_type,
  generated_with,
  status,
  priority,
  params,
  file_url,
  file_size,
  mime_type,
  duration_seconds,
  quality_score,
  processing_time_ms,
  error_message,
  error_details,
  retry_count,
  next_retry_at,
  deadline,
  is_permanent,
  expires_at,
  version,
  created_at,
  updated_at
from generation_records
where status = 'FAILED'
  and updated_at <= $1::timestamptz
order by updated_at asc
limit $2::int;
`

const QDeleteGenerationRecords = `--sql 52e1a7f1-164e-4b8d-a5dc-ea74762dc3b8
delete from generation_records
where id = any($1::uuid[]);
`
