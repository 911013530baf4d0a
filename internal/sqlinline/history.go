// Package sqlinline is the single home for SQL text. Every statement carries
// a --sql marker with a stable UUID so queries can be traced from server logs
// back to their source; the sqllint tool enforces both rules.
package sqlinline

const QInsertHistory = `--sql 457f2e32-6145-4f1b-9c58-3671767ef447
insert into comic_history (
  id, title, original_video_title, creation_date, panel_count,
  payload, device_id, story_style, thumbnail_ref
)
values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
on conflict (id) do nothing;
`

const QListHistory = `--sql 63faad43-cc6e-4466-a794-00665bacd0a5
select id, title, original_video_title, creation_date, panel_count,
       payload, device_id, story_style, thumbnail_ref
from comic_history
order by creation_date desc, id desc;
`

const QListHistoryRecent = `--sql 1664b97e-3561-4ec2-85dd-9924d108c6c3
select id, title, original_video_title, creation_date, panel_count,
       payload, device_id, story_style, thumbnail_ref
from comic_history
order by creation_date desc, id desc
limit $1;
`

const QGetHistoryByID = `--sql 3489e529-673a-4fa9-8fa1-d7a9880943e6
select id, title, original_video_title, creation_date, panel_count,
       payload, device_id, story_style, thumbnail_ref
from comic_history
where id = $1;
`

const QDeleteHistory = `--sql ed8dca08-7eb2-4a9b-b620-c22c92bf1028
delete from comic_history where id = $1;
`

const QDeleteAllHistory = `--sql 23ce59a1-dd48-451d-958b-7168b91710a1
delete from comic_history;
`

const QCountHistory = `--sql 7d128c13-a98c-4862-86fb-1c18f13d1c40
select count(*) from comic_history;
`

const QCreateHistoryTable = `--sql 1b31fdf4-6c20-4678-bf33-08f755c9fc1f
create table if not exists comic_history (
  id                   text primary key,
  title                text not null,
  original_video_title text not null default '',
  creation_date        timestamptz not null,
  panel_count          integer not null default 0,
  payload              jsonb not null,
  device_id            text not null default '',
  story_style          text not null default '',
  thumbnail_ref        text not null default ''
);
create index if not exists comic_history_creation_date_idx
  on comic_history (creation_date desc, id desc);
`
