package couchbase

// Client represents a Couchbase client that orchestrates all operations
type Client struct {
	connManager *ConnectionManager
	docManager  *DocumentManager
	locker      *DatabaseLocker
	bucketName  string
}

// Options identifies the cluster, bucket and the name this process records
// when it takes the database lock.
type Options struct {
	URL       string
	Username  string
	Password  string
	Bucket    string
	LockOwner string
}

// NewClient connects to Couchbase
func NewClient(opts Options) (*Client, error) {
	connManager, err := NewConnectionManager(opts.URL, opts.Username, opts.Password, opts.Bucket)
	if err != nil {
		return nil, err
	}

	bucket := connManager.GetBucket()

	return &Client{
		connManager: connManager,
		docManager:  NewDocumentManager(bucket),
		locker:      NewDatabaseLocker(bucket, opts.LockOwner),
		bucketName:  opts.Bucket,
	}, nil
}

// Close closes the Couchbase connection
func (c *Client) Close() error {
	return c.connManager.Close()
}

// GetLocker returns the database locker
func (c *Client) GetLocker() *DatabaseLocker {
	return c.locker
}

// Patients returns the patient repository backed by this client
func (c *Client) Patients() *PatientStore {
	return &PatientStore{
		docs:    c.docManager,
		locker:  c.locker,
		cluster: c.connManager.GetCluster(),
		bucket:  c.bucketName,
	}
}
