package sqlinline

const QInsertGenerationRecord = `--sql 155ecf9e-3494-44d1-9c3a-e276f364b05e
insert into generation_records(
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
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::text,
  $6::text,
  $7::text,
  $8::jsonb,
  $9::text,
  $10::bigint,
  $11::text,
  $12::double precision,
  $13::double precision,
  $14::bigint,
  $15::text,
  $16::jsonb,
  $17::int,
  $18::timestamptz,
  $19::timestamptz,
  $20::boolean,
  $21::timestamptz,
  $22::bigint,
  $23::timestamptz,
  $24::timestamptz
);
`

const QSelectGenerationRecordByID = `--sql 0de72569-7d02-48bd-9449-ef6790bcbe3b
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
where id = $1::uuid
limit 1;
`

const QUpdateGenerationRecord = `--sql 57646ac1-9aec-4649-ad09-be5fdb0efff2
update generation_records set
  generated_with     = $3::text,
  status             = $4::text,
  file_url           = $5::text,
  file_size          = $6::bigint,
  mime_type          = $7::text,
  duration_seconds   = $8::double precision,
  quality_score      = $9::double precision,
  processing_time_ms = $10::bigint,
  error_message      = $11::text,
  error_details      = $12::jsonb,
  retry_count        = $13::int,
  next_retry_at      = $14::timestamptz,
  deadline           = $15::timestamptz,
  version            = $16::bigint,
  updated_at         = $17::timestamptz
where id = $1::uuid and version = $2::bigint;
`

const QDeleteGenerationRecord = `--sql 7479cebf-31db-4b38-b1dc-6c62c5d7d447
delete from generation_records
where id = $1::uuid;
`

const QListGenerationRecords = `--sql 444ce911-de44-4de1-ada9-5a2ec4b2a59c
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
where (nullif($1::text, '') is null or job_id = $1::text)
  and (nullif($2::text, '') is null or user_id = $2::text)
  and (nullif($3::text, '') is null or status = $3::text)
  and (nullif($4::text, '') is null or content_type = $4::text)
  and ($5::timestamptz is null or created_at >= $5::timestamptz)
  and ($6::timestamptz is null or created_at <= $6::timestamptz)
  and ($7::boolean
       or (status <> 'EXPIRED'
           and (is_permanent or expires_at is null or expires_at > $8::timestamptz)))
  and ($9::timestamptz is null
       or created_at < $9::timestamptz
       or (created_at = $9::timestamptz and id < $10::uuid))
order by created_at desc, id desc
limit $11::int;
`

const QCountActiveGenerationRecords = `--sql 8e5cfbbe-460a-48e6-b5f2-5310820ea445
select
  count(*) filter (where status = 'GENERATING') as generating,
  count(*) filter (where status = 'PENDING') as pending
from generation_records;
`

const QCountActiveGenerationRecordsByUser = `--sql d15b3147-b938-4f35-914e-998df3f6c966
select count(*)
from generation_records
where user_id = $1::text
  and status in ('PENDING', 'GENERATING');
`

const QCountGenerationRecordsByStatus = `--sql 9f2a6c41-03de-47b8-b7ad-52c28f1e44aa
select status, count(*)
from generation_records
group by status;
`
