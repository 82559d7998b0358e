package sqlinline

const QSelectProviderToken = `--sql 08ad5640-ff3c-4a93-8aa9-d9ed7964a153
select token
from provider_tokens
where provider = $1::text
limit 1;
`

const QUpsertProviderToken = `--sql d64e9aee-5431-45c2-9613-5222b041d868
with incoming as (
    select
        $1::text as provider,
        $2::text as token,
        coalesce($3::jsonb, '{}'::jsonb) as properties
)
insert into provider_tokens (id, provider, token, properties, created_at, updated_at)
values (gen_random_uuid(), (select provider from incoming), (select token from incoming), (select properties from incoming), now(), now())
on conflict (provider) do update set
    token = excluded.token,
    properties = excluded.properties,
    updated_at = now();
`
