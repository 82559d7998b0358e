package sqlinline

const QClaimGenerationRecord = `--sql 7837e18e-482c-4e45-857a-f5f0f572a075
update generation_records
set status = 'GENERATING',
    generated_with = $2::text,
    deadline = $3::timestamptz,
    next_retry_at = null,
    version = version + 1,
    updated_at = $4::timestamptz
where id = $1::uuid
  and status = 'PENDING'
  and (next_retry_at is null or next_retry_at <= $4::timestamptz)
returning
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
  updated_at;
`

const QListClaimCandidates = `--sql fc4f75b1-12c2-4d91-9e3c-4b637b0c4066
select id, user_id, content_type, priority, created_at, next_retry_at
from generation_records
where status = 'PENDING'
order by created_at asc
limit $1::int;
`

const QListOverdueGenerating = `--sql e3e4d282-bda3-49ba-b7d4-cbe5309e7aae
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
where status = 'GENERATING'
  and deadline is not null
  and deadline <= $1::timestamptz
order by deadline asc
limit $2::int;
`
