package db

// SchemaSQL contains the job table schema initialization SQL.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS import_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS status ON import_job TYPE string;
    DEFINE FIELD IF NOT EXISTS is_blob_source ON import_job TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS request_payload ON import_job TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON import_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS total_entities ON import_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS processed_entities ON import_job TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS entities_error ON import_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS status_message ON import_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS start_time ON import_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS last_update_time ON import_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS end_time ON import_job TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS import_job_status ON import_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS import_job_user ON import_job FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS import_job_start ON import_job FIELDS start_time;
`
